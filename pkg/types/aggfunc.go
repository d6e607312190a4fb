package types

import (
	"fmt"
	"strings"
)

// AggFunc is an aggregation function declared in the schema document or
// requested as a query measure.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// ParseAggFunc converts a function name string to an AggFunc.
// Matching is case-insensitive.
func ParseAggFunc(name string) (AggFunc, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "COUNT":
		return AggCount, nil
	case "SUM":
		return AggSum, nil
	case "AVG":
		return AggAvg, nil
	case "MIN":
		return AggMin, nil
	case "MAX":
		return AggMax, nil
	default:
		return 0, fmt.Errorf("unknown aggregation function: %s", name)
	}
}

// String returns the canonical uppercase function name.
func (f AggFunc) String() string {
	switch f {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	}
	return "UNKNOWN"
}

// RequiresNumeric reports whether the function is only defined over numeric
// field types. COUNT accepts any type (it counts non-null occurrences).
func (f AggFunc) RequiresNumeric() bool {
	return f != AggCount
}
