package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is a single fetched or joined row, keyed by field name.
// Records fetched from a backend are keyed by canonical field names;
// joined records produced by the executor are keyed by qualified
// "entity.Field" names to keep same-named fields from colliding.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// KeyString produces a deterministic string form of a value for use in
// join-key and group-key tuples. Integer-valued floats render without a
// fractional part so values survive a JSON round trip unchanged.
func KeyString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<NULL>"
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// TupleKey joins the KeyString forms of a value tuple into a single map key.
func TupleKey(vals []interface{}) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = KeyString(v)
	}
	return strings.Join(parts, "\x1f")
}
