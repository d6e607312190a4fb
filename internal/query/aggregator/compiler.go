package aggregator

import (
	"fmt"
	"strings"

	"github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/internal/query/planner"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

// CompiledAggregation is a grouped reducer ready to run over the joined
// result set.
type CompiledAggregation struct {
	// Entity is the declaring entity's canonical name.
	Entity string

	// Field is the canonical source field name.
	Field string

	// Func is the aggregate function.
	Func types.AggFunc

	// Alias is the output column name.
	Alias string

	// GroupKey is the ordered list of qualified field references
	// ("entity.Field") forming the effective grouping key. Empty means the
	// whole result is one group.
	GroupKey []string
}

// Compile turns a requested aggregation into a grouped reducer. The
// effective grouping key is the declaring entity's mandatory fields when it
// has any, otherwise the join-key tuple used to reach the entity from the
// root, otherwise (root with no mandatory fields) the whole result.
// Numeric functions on a non-numeric field fail here, before any fetch.
func Compile(snap *schema.Snapshot, plan *planner.JoinPlan, spec *schema.AggregationSpec, entityName string) (*CompiledAggregation, error) {
	es, ok := snap.Get(entityName)
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("aggregation %q declared on unknown entity %q", spec.Alias, entityName), nil)
	}

	field, ok := snap.Resolver.ResolveIn(es.Name, spec.Field)
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("aggregation %q: field %q not found on entity %q", spec.Alias, spec.Field, es.Name), nil)
	}
	if spec.Func.RequiresNumeric() && !field.Type.Numeric() {
		return nil, errors.NewTypeMismatchError(
			fmt.Sprintf("aggregation %q: %s requires a numeric field, %s.%s is %s",
				spec.Alias, spec.Func, es.Name, field.Name, field.Type))
	}

	groupKey, err := groupKeyFor(snap, plan, es)
	if err != nil {
		return nil, err
	}

	return &CompiledAggregation{
		Entity:   es.Name,
		Field:    field.Name,
		Func:     spec.Func,
		Alias:    spec.Alias,
		GroupKey: groupKey,
	}, nil
}

// groupKeyFor computes the effective grouping key for an aggregation
// declared on the given entity.
func groupKeyFor(snap *schema.Snapshot, plan *planner.JoinPlan, es *schema.EntitySchema) ([]string, error) {
	if len(es.MandatoryFields) > 0 {
		key := make([]string, 0, len(es.MandatoryFields))
		for _, m := range es.MandatoryFields {
			f, ok := snap.Resolver.ResolveIn(es.Name, m)
			if !ok {
				return nil, errors.NewInternalError(
					fmt.Sprintf("mandatory field %q not found on entity %q", m, es.Name), nil)
			}
			key = append(key, es.Name+"."+f.Name)
		}
		return key, nil
	}

	// No mandatory fields: fall back to the join-key tuple that reaches
	// this entity in the plan. The root with no mandatory fields groups
	// the whole result as one.
	for _, step := range plan.Steps {
		if !strings.EqualFold(step.Entity, es.Name) {
			continue
		}
		key := make([]string, 0, len(step.Columns))
		for _, c := range step.Columns {
			key = append(key, es.Name+"."+c.Target)
		}
		return key, nil
	}
	return nil, nil
}

// qualifiedValue reads a joined-record value by its qualified reference.
func qualifiedValue(rec types.Record, ref string) interface{} {
	return rec[ref]
}

// groupOf renders a record's grouping key. Records missing a key field
// group under the null rendering of that field.
func (c *CompiledAggregation) groupOf(rec types.Record) string {
	if len(c.GroupKey) == 0 {
		return ""
	}
	vals := make([]interface{}, len(c.GroupKey))
	for i, ref := range c.GroupKey {
		vals[i] = qualifiedValue(rec, ref)
	}
	return types.TupleKey(vals)
}

// Apply runs the reducers over the joined records and annotates every
// record with each aggregation's per-group result under its alias.
func Apply(records []types.Record, aggs []*CompiledAggregation) {
	for _, agg := range aggs {
		source := agg.Entity + "." + agg.Field

		groups := make(map[string]*PartialAggregate)
		for _, rec := range records {
			key := agg.groupOf(rec)
			pa, ok := groups[key]
			if !ok {
				pa = NewPartialAggregate(agg.Func)
				groups[key] = pa
			}
			pa.Accumulate(rec[source])
		}

		for _, rec := range records {
			rec[agg.Alias] = groups[agg.groupOf(rec)].Result()
		}
	}
}
