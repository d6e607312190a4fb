// Package executor runs join plans against backend adapters: concurrent
// bounded fetches, client-side hash joins, grouped aggregation, and
// deadline enforcement.
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftdb/weft/internal/backend"
	"github.com/weftdb/weft/internal/config"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/internal/observability"
	"github.com/weftdb/weft/internal/query/aggregator"
	"github.com/weftdb/weft/internal/query/planner"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

// Pushing more than this many distinct key values to a backend stops
// helping: fetch the step unfiltered and let the hash join narrow it.
const maxPushdownValues = 1000

// Filter is one request filter, pre-resolution.
type Filter struct {
	Field    string
	Operator string
	Values   []interface{}
}

// SortKey is one requested sort column.
type SortKey struct {
	Field string
	Order string // ASC or DESC
}

// Request is a resolved-root query against one datasource.
type Request struct {
	// Root optionally names the root entity. When empty, the root is the
	// lowest-priority entity owning any requested field.
	Root string

	// Fields are the requested field references: bare aliases, dotted
	// qualifier.field forms, or aggregation output aliases.
	Fields []string

	Filters []Filter
	Sort    []SortKey

	// Page is 1-based; PageSize 0 takes the configured default.
	Page     int
	PageSize int
}

// Result is the final joined, aggregated, sorted, and paginated result.
type Result struct {
	QueryID    string
	Columns    []string
	Rows       []types.Record
	TotalCount int
	Page       int
	PageSize   int
	Warnings   []string
	Stats      ExecutionStats
}

// ExecutionStats contains per-query execution metrics.
type ExecutionStats struct {
	EntitiesFetched int
	RecordsFetched  int64
	Retries         int
	ElapsedMs       int64
}

// Engine executes requests against configured datasources using the
// current schema snapshot.
type Engine struct {
	registry    *schema.Registry
	adapters    map[string]backend.Adapter
	datasources map[string]config.DatasourceConfig
	cfg         config.QueryConfig
	stats       *observability.FetchStats
	cache       *FetchCache
}

// NewEngine creates a query engine over the given adapters.
func NewEngine(registry *schema.Registry, adapters map[string]backend.Adapter,
	datasources map[string]config.DatasourceConfig, cfg config.QueryConfig) *Engine {
	var cache *FetchCache
	if cfg.CacheMaxBytes > 0 {
		cache = NewFetchCache(cfg.CacheMaxBytes, cfg.CacheTTL)
	}
	return &Engine{
		registry:    registry,
		adapters:    adapters,
		datasources: datasources,
		cfg:         cfg,
		stats:       observability.NewFetchStats(),
		cache:       cache,
	}
}

// Stats exposes the per-entity fetch statistics tracker.
func (e *Engine) Stats() *observability.FetchStats {
	return e.stats
}

// resolvedField pairs a requested reference with its resolution.
type resolvedField struct {
	Ref string
	Res schema.Resolution
}

// Execute runs one request end to end.
func (e *Engine) Execute(ctx context.Context, datasource string, req Request) (*Result, error) {
	started := time.Now()
	queryID := uuid.New().String()

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

	if len(req.Fields) == 0 {
		return nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
			"request names no fields")
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	root, err := e.rootFor(snap, req)
	if err != nil {
		return nil, err
	}

	fields, filters, sortKeys, err := e.resolveRequest(snap, root, req)
	if err != nil {
		return nil, err
	}

	plan, compiled, err := e.planAndCompile(snap, root, fields, filters, sortKeys)
	if err != nil {
		return nil, err
	}

	rows, warnings, stats, err := e.fetchAndJoin(ctx, adapter, dsCfg, plan, fields, filters, sortKeys, compiled)
	if err != nil {
		return nil, err
	}

	aggregator.Apply(rows, compiled)
	sortJoined(rows, sortKeys)

	out := e.project(rows, fields)
	total := len(out)
	page, pageSize := e.pageBounds(req)
	out = paginate(out, page, pageSize)

	stats.ElapsedMs = time.Since(started).Milliseconds()
	log.Printf("executor: query %s root=%s entities=%d rows=%d elapsed=%dms",
		queryID, plan.Root, stats.EntitiesFetched, total, stats.ElapsedMs)

	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Ref
	}

	return &Result{
		QueryID:    queryID,
		Columns:    columns,
		Rows:       out,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		Warnings:   warnings,
		Stats:      stats,
	}, nil
}

// rootFor determines the root entity: the request's explicit root, or the
// lowest-priority entity owning any requested reference.
func (e *Engine) rootFor(snap *schema.Snapshot, req Request) (string, error) {
	if req.Root != "" {
		es, ok := snap.EntityForQualifier(req.Root)
		if !ok {
			return "", werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("unknown root entity %q", req.Root))
		}
		return es.Name, nil
	}

	refs := make([]string, 0, len(req.Fields)+len(req.Filters))
	refs = append(refs, req.Fields...)
	for _, f := range req.Filters {
		refs = append(refs, f.Field)
	}

	best := ""
	bestPriority := math.MaxInt
	for _, ref := range refs {
		owner, ok := e.owningEntity(snap, ref)
		if !ok {
			continue // full resolution reports the error with context
		}
		if owner.Priority < bestPriority {
			bestPriority = owner.Priority
			best = owner.Name
		}
	}
	if best == "" {
		return "", werrors.NewUnknownFieldError(refs[0])
	}
	return best, nil
}

// owningEntity finds the entity a reference belongs to, scanning all
// schemas in priority order. Used only for root determination; reachability
// and ambiguity are enforced by the resolver afterwards.
func (e *Engine) owningEntity(snap *schema.Snapshot, ref string) (*schema.EntitySchema, bool) {
	if qualifier, _, ok := strings.Cut(ref, "."); ok {
		return snap.EntityForQualifier(qualifier)
	}
	for _, es := range snap.All() {
		if _, ok := snap.Resolver.ResolveIn(es.Name, ref); ok {
			return es, true
		}
		for _, agg := range es.Aggregations {
			if strings.EqualFold(agg.Alias, ref) {
				return es, true
			}
		}
	}
	return nil, false
}

// resolvedFilter pairs a request filter with its resolution.
type resolvedFilter struct {
	Filter
	Res schema.Resolution
}

// resolvedSort pairs a sort key with its resolution.
type resolvedSort struct {
	SortKey
	Res schema.Resolution
}

// resolveRequest resolves every reference in the request against the root
// and validates filter shapes and value types.
func (e *Engine) resolveRequest(snap *schema.Snapshot, root string, req Request) ([]resolvedField, []resolvedFilter, []resolvedSort, error) {
	fields := make([]resolvedField, 0, len(req.Fields))
	for _, ref := range req.Fields {
		res, err := snap.Resolver.Resolve(root, ref)
		if err != nil {
			return nil, nil, nil, err
		}
		if res.Restricted && res.Aggregation == nil {
			return nil, nil, nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeRestrictedField,
				fmt.Sprintf("field %q is restricted and cannot be projected", ref))
		}
		fields = append(fields, resolvedField{Ref: ref, Res: res})
	}

	filters := make([]resolvedFilter, 0, len(req.Filters))
	for _, f := range req.Filters {
		res, err := snap.Resolver.Resolve(root, f.Field)
		if err != nil {
			return nil, nil, nil, err
		}
		if res.Aggregation != nil {
			return nil, nil, nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("cannot filter on aggregation output %q", f.Field))
		}
		if err := validateFilter(f, res); err != nil {
			return nil, nil, nil, err
		}
		filters = append(filters, resolvedFilter{Filter: f, Res: res})
	}

	sortKeys := make([]resolvedSort, 0, len(req.Sort))
	for _, s := range req.Sort {
		res, err := snap.Resolver.Resolve(root, s.Field)
		if err != nil {
			return nil, nil, nil, err
		}
		order := strings.ToUpper(s.Order)
		if order == "" {
			order = "ASC"
		}
		if order != "ASC" && order != "DESC" {
			return nil, nil, nil, werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("invalid sort order %q for field %q", s.Order, s.Field))
		}
		sortKeys = append(sortKeys, resolvedSort{SortKey: SortKey{Field: s.Field, Order: order}, Res: res})
	}

	return fields, filters, sortKeys, nil
}

// validateFilter checks the operator's value shape and each value against
// the field's declared type.
func validateFilter(f Filter, res schema.Resolution) error {
	op := strings.ToUpper(f.Operator)
	switch op {
	case "EQUAL":
		if len(f.Values) != 1 {
			return werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("EQUAL filter on %q needs exactly one value", f.Field))
		}
	case "IN", "INLIST":
		if len(f.Values) == 0 {
			return werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("IN filter on %q needs at least one value", f.Field))
		}
	case "BETWEEN":
		if len(f.Values) != 2 {
			return werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
				fmt.Sprintf("BETWEEN filter on %q needs exactly two values", f.Field))
		}
	default:
		return werrors.New(werrors.ErrCategoryQuery, werrors.CodeInvalidRequest,
			fmt.Sprintf("unsupported operator %q on %q (supported: EQUAL, IN, INLIST, BETWEEN)", f.Operator, f.Field))
	}

	for _, v := range f.Values {
		if v == nil {
			continue
		}
		if !res.Type.ValueMatches(v) {
			return werrors.NewTypeMismatchError(
				fmt.Sprintf("filter value %v does not match %s type of %s", v, res.Type, res.Qualified()))
		}
	}
	return nil
}

// planAndCompile builds the join plan over the needed entities and compiles
// the requested aggregations against it.
func (e *Engine) planAndCompile(snap *schema.Snapshot, root string, fields []resolvedField,
	filters []resolvedFilter, sortKeys []resolvedSort) (*planner.JoinPlan, []*aggregator.CompiledAggregation, error) {

	needed := make(map[string]bool)
	add := func(entity string) {
		needed[strings.ToLower(entity)] = true
	}
	for _, f := range fields {
		add(f.Res.Entity)
	}
	for _, f := range filters {
		add(f.Res.Entity)
	}
	for _, s := range sortKeys {
		add(s.Res.Entity)
	}

	plan, err := planner.Plan(snap, root, needed)
	if err != nil {
		return nil, nil, werrors.NewInternalError("join planning failed", err)
	}

	var compiled []*aggregator.CompiledAggregation
	for _, f := range fields {
		if f.Res.Aggregation == nil {
			continue
		}
		agg, err := aggregator.Compile(snap, plan, f.Res.Aggregation, f.Res.Entity)
		if err != nil {
			return nil, nil, err
		}
		compiled = append(compiled, agg)
	}
	return plan, compiled, nil
}

// projections computes the canonical fields to fetch per entity.
func projections(plan *planner.JoinPlan, fields []resolvedField, filters []resolvedFilter,
	sortKeys []resolvedSort, compiled []*aggregator.CompiledAggregation) map[string]map[string]bool {

	proj := make(map[string]map[string]bool)
	add := func(entity, field string) {
		key := strings.ToLower(entity)
		if proj[key] == nil {
			proj[key] = make(map[string]bool)
		}
		proj[key][field] = true
	}

	for _, f := range fields {
		add(f.Res.Entity, f.Res.Field)
	}
	for _, f := range filters {
		add(f.Res.Entity, f.Res.Field)
	}
	for _, s := range sortKeys {
		add(s.Res.Entity, s.Res.Field)
	}
	for _, agg := range compiled {
		add(agg.Entity, agg.Field)
		for _, ref := range agg.GroupKey {
			if entity, field, ok := strings.Cut(ref, "."); ok {
				add(entity, field)
			}
		}
	}

	parents := stepParents(plan)
	for i, step := range plan.Steps {
		for _, c := range step.Columns {
			add(parents[i], c.Source)
			add(step.Entity, c.Target)
		}
	}
	return proj
}

// stepParents returns each step's parent entity name.
func stepParents(plan *planner.JoinPlan) []string {
	parents := make([]string, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.ParentIndex < 0 {
			parents[i] = plan.Root
		} else {
			parents[i] = plan.Steps[step.ParentIndex].Entity
		}
	}
	return parents
}

// fetchAndJoin fetches the root, then each depth wave concurrently, joining
// waves into the result as they complete.
func (e *Engine) fetchAndJoin(ctx context.Context, adapter backend.Adapter,
	dsCfg config.DatasourceConfig, plan *planner.JoinPlan, fields []resolvedField,
	filters []resolvedFilter, sortKeys []resolvedSort, compiled []*aggregator.CompiledAggregation) ([]types.Record, []string, ExecutionStats, error) {

	var stats ExecutionStats
	var warnings []string

	proj := projections(plan, fields, filters, sortKeys, compiled)
	parents := stepParents(plan)

	rootRecords, err := e.fetchEntity(ctx, adapter, dsCfg, plan.Root, proj, filters, nil, false, &stats)
	if err != nil {
		return nil, nil, stats, e.classifyStepFailure(ctx, plan.Root, err)
	}

	rows := make([]types.Record, len(rootRecords))
	for i, rec := range rootRecords {
		rows[i] = qualify(plan.Root, rec)
	}

	// A request filter resolved to a lookup entity makes the match
	// mandatory: parent rows whose target was filtered out must not
	// survive with the field absent.
	filtered := make(map[string]bool, len(filters))
	for _, f := range filters {
		filtered[strings.ToLower(f.Res.Entity)] = true
	}

	// Fetch wave by wave: steps at one depth only depend on key values
	// already joined, so they run concurrently under the fetch bound.
	// Each goroutine counts into its own stats, merged after the wave.
	sem := make(chan struct{}, e.cfg.MaxConcurrentFetches)
	for depth := 1; depth <= plan.MaxDepth(); depth++ {
		type stepResult struct {
			idx     int
			records []types.Record
			stats   ExecutionStats
			err     error
		}

		var wave []int
		for i, step := range plan.Steps {
			if step.Depth == depth {
				wave = append(wave, i)
			}
		}

		results := make([]stepResult, len(wave))
		var wg sync.WaitGroup
		for w, idx := range wave {
			wg.Add(1)
			go func(w, idx int) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results[w] = stepResult{idx: idx, err: ctx.Err()}
					return
				}

				step := plan.Steps[idx]
				keyFilters := keyFiltersFor(rows, parents[idx], step)
				var stepStats ExecutionStats
				records, err := e.fetchEntity(ctx, adapter, dsCfg, step.Entity, proj, filters, keyFilters, step.Optional, &stepStats)
				results[w] = stepResult{idx: idx, records: records, stats: stepStats, err: err}
			}(w, idx)
		}
		wg.Wait()

		for _, r := range results {
			step := plan.Steps[r.idx]
			stats.EntitiesFetched += r.stats.EntitiesFetched
			stats.RecordsFetched += r.stats.RecordsFetched
			stats.Retries += r.stats.Retries
			if r.err != nil {
				return nil, nil, stats, e.classifyStepFailure(ctx, step.Entity, r.err)
			}
			if step.Optional && filtered[strings.ToLower(step.Entity)] {
				step.Optional = false
			}
			var stepWarnings []string
			rows, stepWarnings = joinStep(rows, r.records, parents[r.idx], step)
			warnings = append(warnings, stepWarnings...)
		}
	}

	return rows, warnings, stats, nil
}

// keyFiltersFor derives per-column IN filters from the parent rows' join
// key values. Oversized key sets are not pushed down.
func keyFiltersFor(rows []types.Record, parentEntity string, step planner.Step) []backend.Filter {
	var out []backend.Filter
	for _, c := range step.Columns {
		seen := make(map[string]bool)
		var values []interface{}
		for _, row := range rows {
			v := row[parentEntity+"."+c.Source]
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
		if len(values) == 0 || len(values) > maxPushdownValues {
			continue
		}
		out = append(out, backend.Filter{Field: c.Target, Operator: "IN", Values: values})
	}
	return out
}

// fetchEntity fetches one entity with retry, stats recording, and (for
// lookup steps) the dimension cache.
func (e *Engine) fetchEntity(ctx context.Context, adapter backend.Adapter, dsCfg config.DatasourceConfig,
	entity string, proj map[string]map[string]bool, filters []resolvedFilter,
	keyFilters []backend.Filter, cacheable bool, stats *ExecutionStats) ([]types.Record, error) {

	var projected []string
	for f := range proj[strings.ToLower(entity)] {
		projected = append(projected, f)
	}
	sort.Strings(projected)

	req := backend.FetchRequest{
		Entity:  entity,
		Table:   dsCfg.TableFor(entity),
		Fields:  projected,
		Filters: append(pushdownFilters(entity, filters), keyFilters...),
	}

	var cacheKey string
	if cacheable && e.cache != nil {
		query, params := backend.BuildSelect(req)
		cacheKey = CacheKey(adapter.Name(), entity, backend.InlineParams(query, params))
		if cached := e.cache.Get(cacheKey); cached != nil {
			stats.EntitiesFetched++
			stats.RecordsFetched += int64(len(cached))
			return cached, nil
		}
	}

	var records []types.Record
	err := e.retryWithBackoff(ctx, entity, stats, func() error {
		started := time.Now()
		fetched, err := adapter.Fetch(ctx, req)
		e.stats.RecordFetch(entity, adapter.Name(), len(fetched), time.Since(started), err)
		if err != nil {
			return err
		}
		records = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		e.cache.Put(cacheKey, records)
	}

	stats.EntitiesFetched++
	stats.RecordsFetched += int64(len(records))
	return records, nil
}

// pushdownFilters selects the request filters that resolve to the entity
// and renders them with canonical column names.
func pushdownFilters(entity string, filters []resolvedFilter) []backend.Filter {
	var out []backend.Filter
	for _, f := range filters {
		if !strings.EqualFold(f.Res.Entity, entity) {
			continue
		}
		out = append(out, backend.Filter{
			Field:    f.Res.Field,
			Operator: strings.ToUpper(f.Operator),
			Values:   f.Values,
		})
	}
	return out
}

// retryWithBackoff retries transient backend faults with exponential
// backoff up to the configured budget. Fatal faults and context expiry
// return immediately.
func (e *Engine) retryWithBackoff(ctx context.Context, entity string, stats *ExecutionStats, operation func() error) error {
	base := e.cfg.RetryBaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !werrors.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < e.cfg.MaxRetries {
			stats.Retries++
			e.stats.RecordRetry(entity)
			backoff := time.Duration(math.Pow(2, float64(attempt))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// classifyStepFailure maps a step failure to the error surfaced to the
// caller: deadline expiry wins, everything else is missing required data.
func (e *Engine) classifyStepFailure(ctx context.Context, entity string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return werrors.NewDeadlineExceededError(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return werrors.NewPartialDataError(entity, err)
}

// project renders the joined rows as output rows keyed by the requested
// references.
func (e *Engine) project(rows []types.Record, fields []resolvedField) []types.Record {
	out := make([]types.Record, len(rows))
	for i, row := range rows {
		rec := make(types.Record, len(fields))
		for _, f := range fields {
			if f.Res.Aggregation != nil {
				rec[f.Ref] = row[f.Res.Aggregation.Alias]
			} else {
				rec[f.Ref] = row[f.Res.Qualified()]
			}
		}
		out[i] = rec
	}
	return out
}

// sortJoined orders the joined rows by the requested sort keys before
// projection, so keys that were not requested as output still sort. With
// no sort keys the fetch order is kept.
func sortJoined(rows []types.Record, sortKeys []resolvedSort) {
	if len(sortKeys) == 0 {
		return
	}

	cols := make([]string, len(sortKeys))
	for i, s := range sortKeys {
		if s.Res.Aggregation != nil {
			cols[i] = s.Res.Aggregation.Alias
		} else {
			cols[i] = s.Res.Qualified()
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, s := range sortKeys {
			cmp := compareValues(rows[i][cols[k]], rows[j][cols[k]])
			if cmp == 0 {
				continue
			}
			if s.Order == "DESC" {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareValues orders two values: nils first, numerics numerically,
// everything else by string form.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	fa, aOk := toFloat(a)
	fb, bOk := toFloat(b)
	if aOk && bOk {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	sa := types.KeyString(a)
	sb := types.KeyString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// toFloat converts a value to float64 for ordering.
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
	}
	return 0, false
}

// pageBounds applies defaults and the configured cap to the request's
// pagination.
func (e *Engine) pageBounds(req Request) (int, int) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = e.cfg.DefaultPageSize
	}
	if e.cfg.MaxPageSize > 0 && pageSize > e.cfg.MaxPageSize {
		pageSize = e.cfg.MaxPageSize
	}
	return page, pageSize
}

// paginate slices one page out of the rows.
func paginate(rows []types.Record, page, pageSize int) []types.Record {
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []types.Record{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
