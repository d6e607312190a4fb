// Package aggregator compiles schema-declared aggregations into grouped
// reducers applied over the joined result set.
package aggregator

import (
	"fmt"

	"github.com/weftdb/weft/pkg/types"
)

// PartialAggregate holds the running state of one aggregate for one group.
// For AVG, both Sum and Count are tracked so the average is computed only
// at the end.
type PartialAggregate struct {
	Type  types.AggFunc
	Count int64       // row count (used by COUNT and AVG)
	Sum   float64     // running sum (used by SUM and AVG)
	Min   interface{} // current minimum (nil if no rows)
	Max   interface{} // current maximum (nil if no rows)
	IsSet bool        // true once at least one value has been accumulated
}

// NewPartialAggregate creates a new empty partial aggregate of the given type.
func NewPartialAggregate(fn types.AggFunc) *PartialAggregate {
	return &PartialAggregate{Type: fn}
}

// Accumulate adds a single value to the partial aggregate.
func (p *PartialAggregate) Accumulate(value interface{}) {
	if value == nil {
		return // NULL values are ignored by all aggregate functions
	}

	switch p.Type {
	case types.AggCount:
		p.Count++
		p.IsSet = true

	case types.AggSum:
		if f, ok := toFloat(value); ok {
			p.Sum += f
			p.Count++
			p.IsSet = true
		}

	case types.AggMin:
		if !p.IsSet || compareAggValues(value, p.Min) < 0 {
			p.Min = value
			p.IsSet = true
		}
		p.Count++

	case types.AggMax:
		if !p.IsSet || compareAggValues(value, p.Max) > 0 {
			p.Max = value
			p.IsSet = true
		}
		p.Count++

	case types.AggAvg:
		if f, ok := toFloat(value); ok {
			p.Sum += f
			p.Count++
			p.IsSet = true
		}
	}
}

// Result returns the final value of this partial aggregate.
func (p *PartialAggregate) Result() interface{} {
	if !p.IsSet {
		if p.Type == types.AggCount {
			return int64(0)
		}
		return nil
	}

	switch p.Type {
	case types.AggCount:
		return p.Count
	case types.AggSum:
		return p.Sum
	case types.AggMin:
		return p.Min
	case types.AggMax:
		return p.Max
	case types.AggAvg:
		if p.Count == 0 {
			return nil
		}
		return p.Sum / float64(p.Count)
	}
	return nil
}

// toFloat converts a value to float64 for numeric aggregation.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint:
		return float64(val), true
	}
	return 0, false
}

// compareAggValues compares two values for MIN/MAX aggregation.
func compareAggValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	// Numeric comparison
	fa, aOk := toFloat(a)
	fb, bOk := toFloat(b)
	if aOk && bOk {
		if fa < fb {
			return -1
		} else if fa > fb {
			return 1
		}
		return 0
	}

	// String comparison
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		if sa < sb {
			return -1
		} else if sa > sb {
			return 1
		}
		return 0
	}

	// Fallback: compare as strings
	sa = fmt.Sprintf("%v", a)
	sb = fmt.Sprintf("%v", b)
	if sa < sb {
		return -1
	} else if sa > sb {
		return 1
	}
	return 0
}
