package executor

import (
	"fmt"
	"log"

	"github.com/weftdb/weft/internal/query/planner"
	"github.com/weftdb/weft/pkg/types"
)

// qualify rewrites a fetched record's keys to "entity.Field" form so
// same-named fields from different entities never collide in the joined
// set.
func qualify(entity string, rec types.Record) types.Record {
	out := make(types.Record, len(rec))
	for k, v := range rec {
		out[entity+"."+k] = v
	}
	return out
}

// sourceKey renders a joined row's key tuple for a step, reading the
// source columns from the parent entity's qualified fields.
func sourceKey(row types.Record, parentEntity string, step planner.Step) string {
	vals := make([]interface{}, len(step.Columns))
	for i, c := range step.Columns {
		vals[i] = row[parentEntity+"."+c.Source]
	}
	return types.TupleKey(vals)
}

// targetKey renders a fetched record's key tuple for a step, reading the
// target columns by their canonical (unqualified) names.
func targetKey(rec types.Record, step planner.Step) string {
	vals := make([]interface{}, len(step.Columns))
	for i, c := range step.Columns {
		vals[i] = rec[c.Target]
	}
	return types.TupleKey(vals)
}

// joinStep merges one step's fetched records into the joined rows.
//
// A strict join (ONE_TO_ONE) hash-indexes the fetched side by its key
// tuple and keeps only rows matched on every key column. A lookup join
// (MANY_TO_ONE) attaches at most one target record per row and keeps
// unmatched rows. Either way the declared cardinality promises at most one
// target record per key, so a duplicate target key is resolved
// first-seen-wins in fetch order and reported as a warning.
func joinStep(rows []types.Record, fetched []types.Record, parentEntity string, step planner.Step) ([]types.Record, []string) {
	var warnings []string

	index := make(map[string]types.Record, len(fetched))
	for _, rec := range fetched {
		key := targetKey(rec, step)
		if _, dup := index[key]; dup {
			kind := "strict join"
			if step.Optional {
				kind = "lookup join"
			}
			w := fmt.Sprintf("%s to %q: duplicate target key %q, keeping first-seen record", kind, step.Entity, key)
			warnings = append(warnings, w)
			log.Printf("executor: %s", w)
			continue
		}
		index[key] = rec
	}

	out := rows[:0]
	for _, row := range rows {
		match, ok := index[sourceKey(row, parentEntity, step)]
		if !ok {
			if step.Optional {
				out = append(out, row)
			}
			continue
		}
		for k, v := range qualify(step.Entity, match) {
			row[k] = v
		}
		out = append(out, row)
	}
	return out, warnings
}
