package aggregator

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/weftdb/weft/pkg/types"
)

// TestProperty_CountReducer validates the grouped COUNT reducer against an
// independently computed reference count over randomly generated datasets:
// per group, the reducer's output equals the number of non-null source
// values in that group.
func TestProperty_CountReducer(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	agg := &CompiledAggregation{
		Entity:   "orders",
		Field:    "Amount",
		Func:     types.AggCount,
		Alias:    "amount_count",
		GroupKey: []string{"orders.Region"},
	}

	properties.Property("COUNT per group equals reference non-null count", prop.ForAll(
		func(groups []int, nullMask []bool) bool {
			records := make([]types.Record, len(groups))
			reference := make(map[string]int64)
			for i, g := range groups {
				region := fmt.Sprintf("region-%d", g)
				rec := types.Record{"orders.Region": region}
				if i < len(nullMask) && nullMask[i] {
					rec["orders.Amount"] = nil
				} else {
					rec["orders.Amount"] = float64(i)
					reference[region]++
				}
				records[i] = rec
			}

			Apply(records, []*CompiledAggregation{agg})

			for i, g := range groups {
				region := fmt.Sprintf("region-%d", g)
				if records[i]["amount_count"] != reference[region] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("whole-result COUNT equals total non-null values", prop.ForAll(
		func(values []int) bool {
			whole := &CompiledAggregation{
				Entity: "orders",
				Field:  "Amount",
				Func:   types.AggCount,
				Alias:  "amount_count",
			}

			records := make([]types.Record, len(values))
			var reference int64
			for i, v := range values {
				rec := types.Record{}
				if v%3 == 0 {
					rec["orders.Amount"] = nil
				} else {
					rec["orders.Amount"] = v
					reference++
				}
				records[i] = rec
			}

			Apply(records, []*CompiledAggregation{whole})

			for _, rec := range records {
				if rec["amount_count"] != reference {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
