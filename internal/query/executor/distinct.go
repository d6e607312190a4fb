package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/weftdb/weft/internal/backend"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

// distinctFetcher is implemented by adapters with a native distinct-values
// query. Adapters without it fall back to a projected fetch deduplicated
// client-side.
type distinctFetcher interface {
	FetchDistinct(ctx context.Context, table, field string, filters []backend.Filter) ([]types.Record, error)
}

// DistinctValues returns the sorted distinct values of one field, filtered
// by any same-entity filters.
func (e *Engine) DistinctValues(ctx context.Context, datasource, field string, filters []Filter) ([]interface{}, error) {
	snap := e.registry.Current()
	if snap == nil {
		return nil, werrors.NewInternalError("no schema snapshot loaded", nil)
	}

	adapter, ok := e.adapters[datasource]
	if !ok {
		return nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
			fmt.Sprintf("unknown datasource %q", datasource))
	}
	dsCfg := e.datasources[datasource]

	owner, ok := e.owningEntity(snap, field)
	if !ok {
		return nil, werrors.NewUnknownFieldError(field)
	}
	def, ok := snap.Resolver.ResolveIn(owner.Name, fieldName(field))
	if !ok {
		return nil, werrors.NewUnknownFieldError(field)
	}
	if owner.IsRestricted(def.Name) {
		return nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeRestrictedField,
			fmt.Sprintf("field %q is restricted and cannot be enumerated", field))
	}

	var pushdown []backend.Filter
	for _, f := range filters {
		fdef, ok := snap.Resolver.ResolveIn(owner.Name, f.Field)
		if !ok {
			return nil, werrors.NewUnknownFieldError(f.Field)
		}
		res := schema.Resolution{Entity: owner.Name, Field: fdef.Name, Type: fdef.Type}
		if err := validateFilter(f, res); err != nil {
			return nil, err
		}
		pushdown = append(pushdown, backend.Filter{
			Field:    fdef.Name,
			Operator: f.Operator,
			Values:   f.Values,
		})
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	table := dsCfg.TableFor(owner.Name)

	var records []types.Record
	var stats ExecutionStats
	err := e.retryWithBackoff(ctx, owner.Name, &stats, func() error {
		started := time.Now()
		var fetched []types.Record
		var err error
		if df, ok := adapter.(distinctFetcher); ok {
			fetched, err = df.FetchDistinct(ctx, table, def.Name, pushdown)
		} else {
			fetched, err = adapter.Fetch(ctx, backend.FetchRequest{
				Entity:  owner.Name,
				Table:   table,
				Fields:  []string{def.Name},
				Filters: pushdown,
			})
		}
		e.stats.RecordFetch(owner.Name, adapter.Name(), len(fetched), time.Since(started), err)
		if err != nil {
			return err
		}
		records = fetched
		return nil
	})
	if err != nil {
		return nil, e.classifyStepFailure(ctx, owner.Name, err)
	}

	seen := make(map[string]bool, len(records))
	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		v := rec[def.Name]
		if v == nil {
			continue
		}
		key := types.KeyString(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		return compareValues(values[i], values[j]) < 0
	})
	return values, nil
}

// fieldName strips an optional qualifier from a field reference.
func fieldName(ref string) string {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			return ref[i+1:]
		}
	}
	return ref
}
