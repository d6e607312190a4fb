package backend

import (
	"fmt"
	"strings"

	"github.com/weftdb/weft/pkg/types"
)

// BuildSelect renders a fetch request as a parameterized SELECT with `?`
// placeholders and the matching parameter list.
func BuildSelect(req FetchRequest) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(req.Fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(req.Fields, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(req.Table)

	where, params := buildWhere(req.Filters)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String(), params
}

// BuildDistinct renders a distinct-values query for one column.
func BuildDistinct(table, field string, filters []Filter) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT ")
	sb.WriteString(field)
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	where, params := buildWhere(filters)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(field)
	return sb.String(), params
}

// buildWhere renders the filters as an ANDed condition list. Filters with
// no usable values are skipped.
func buildWhere(filters []Filter) (string, []interface{}) {
	var conditions []string
	var params []interface{}

	for _, f := range filters {
		switch strings.ToUpper(f.Operator) {
		case "EQUAL":
			if len(f.Values) == 1 {
				conditions = append(conditions, f.Field+" = ?")
				params = append(params, f.Values[0])
			}
		case "IN", "INLIST":
			if len(f.Values) > 0 {
				placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Values)), ",")
				conditions = append(conditions, f.Field+" IN ("+placeholders+")")
				params = append(params, f.Values...)
			}
		case "BETWEEN":
			if len(f.Values) == 2 {
				conditions = append(conditions, f.Field+" BETWEEN ? AND ?")
				params = append(params, f.Values[0], f.Values[1])
			}
		}
	}
	return strings.Join(conditions, " AND "), params
}

// InlineParams substitutes parameters into the query text for backends
// that do not accept bind parameters (the Pinot broker and the Trino REST
// statement endpoint). Strings are single-quoted with quote doubling.
func InlineParams(query string, params []interface{}) string {
	var sb strings.Builder
	idx := 0
	for _, r := range query {
		if r == '?' && idx < len(params) {
			sb.WriteString(literal(params[idx]))
			idx++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// literal renders one parameter as a SQL literal.
func literal(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int, int32, int64, float32, float64:
		return types.KeyString(val)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
