// Package types provides core data types for the weft federation layer.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared type of an entity field.
type FieldType int

const (
	TypeVarchar FieldType = iota
	TypeInteger
	TypeDouble
	TypeDate
	TypeTimestamp
)

// ParseFieldType converts a schema-document type string to a FieldType.
// Matching is case-insensitive. "DOUBLE PRECISION" is accepted as an
// alias for DOUBLE for compatibility with older schema documents.
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "VARCHAR":
		return TypeVarchar, nil
	case "INTEGER":
		return TypeInteger, nil
	case "DOUBLE", "DOUBLE PRECISION":
		return TypeDouble, nil
	case "DATE":
		return TypeDate, nil
	case "TIMESTAMP":
		return TypeTimestamp, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", name)
	}
}

// String returns the canonical schema-document spelling.
func (t FieldType) String() string {
	switch t {
	case TypeVarchar:
		return "VARCHAR"
	case TypeInteger:
		return "INTEGER"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	}
	return "UNKNOWN"
}

// Numeric reports whether the type is valid for SUM/AVG/MIN/MAX aggregation.
func (t FieldType) Numeric() bool {
	return t == TypeInteger || t == TypeDouble
}

// Coerce converts a backend value into the canonical Go representation for
// the field type: string for VARCHAR/DATE/TIMESTAMP, int64 for INTEGER,
// float64 for DOUBLE. nil passes through. Backends deserialize JSON numbers
// as float64, so integer fields are normalized here before values are used
// in join keys or group keys.
func (t FieldType) Coerce(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeVarchar, TypeDate, TypeTimestamp:
		switch val := v.(type) {
		case string:
			return val, nil
		case time.Time:
			return val.UTC().Format(time.RFC3339), nil
		case []byte:
			return string(val), nil
		default:
			return fmt.Sprintf("%v", val), nil
		}

	case TypeInteger:
		switch val := v.(type) {
		case int64:
			return val, nil
		case int:
			return int64(val), nil
		case int32:
			return int64(val), nil
		case float64:
			return int64(val), nil
		case float32:
			return int64(val), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to INTEGER", val)
			}
			return n, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to INTEGER", v)

	case TypeDouble:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case int:
			return float64(val), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to DOUBLE", val)
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to DOUBLE", v)
	}

	return v, nil
}

// ValueMatches reports whether a filter value is acceptable for the type
// without lossy conversion. Used when validating request filters eagerly.
func (t FieldType) ValueMatches(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t {
	case TypeVarchar, TypeDate, TypeTimestamp:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		switch val := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return val == float64(int64(val))
		case float32:
			return val == float32(int64(val))
		}
		return false
	case TypeDouble:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	}
	return false
}
