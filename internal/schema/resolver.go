package schema

import (
	"sort"
	"strings"

	"github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

// Resolution is the canonical result of resolving a field reference.
type Resolution struct {
	Entity string
	Field  string
	Type   types.FieldType

	// Aggregation is set when the reference matched a schema-declared
	// aggregation output alias rather than a plain field.
	Aggregation *AggregationSpec

	// Restricted reports whether the resolved field may not be projected.
	Restricted bool
}

// Qualified returns the "entity.Field" form used to key joined records.
func (r Resolution) Qualified() string {
	return r.Entity + "." + r.Field
}

// FieldResolver maps case-insensitive field references to canonical
// (entity, field, type) triples. All lookup tables are precomputed once at
// load time; no per-query scanning of alias lists.
type FieldResolver struct {
	snap *Snapshot

	// perEntity: lowercase entity name -> lowercase alias/name -> field def.
	perEntity map[string]map[string]*FieldDef

	// byAlias: lowercase alias/name -> entities declaring it, in snapshot
	// (priority) order.
	byAlias map[string][]aliasOwner

	// aggAliases: lowercase aggregation alias -> declaring entities.
	aggAliases map[string][]aggOwner
}

type aliasOwner struct {
	entity *EntitySchema
	field  *FieldDef
}

type aggOwner struct {
	entity *EntitySchema
	spec   *AggregationSpec
}

func newFieldResolver(snap *Snapshot) *FieldResolver {
	fr := &FieldResolver{
		snap:       snap,
		perEntity:  make(map[string]map[string]*FieldDef),
		byAlias:    make(map[string][]aliasOwner),
		aggAliases: make(map[string][]aggOwner),
	}

	for _, es := range snap.All() {
		table := make(map[string]*FieldDef)
		for _, f := range es.Fields {
			table[strings.ToLower(f.Name)] = f
			fr.byAlias[strings.ToLower(f.Name)] = append(fr.byAlias[strings.ToLower(f.Name)], aliasOwner{es, f})
			for _, a := range f.Aliases {
				table[strings.ToLower(a)] = f
				fr.byAlias[strings.ToLower(a)] = append(fr.byAlias[strings.ToLower(a)], aliasOwner{es, f})
			}
		}
		fr.perEntity[strings.ToLower(es.Name)] = table

		for _, agg := range es.Aggregations {
			key := strings.ToLower(agg.Alias)
			fr.aggAliases[key] = append(fr.aggAliases[key], aggOwner{es, agg})
		}
	}

	return fr
}

// ResolveIn resolves a field reference within a single schema, matching
// the canonical name or any alias case-insensitively.
func (fr *FieldResolver) ResolveIn(entityName, ref string) (*FieldDef, bool) {
	table, ok := fr.perEntity[strings.ToLower(entityName)]
	if !ok {
		return nil, false
	}
	f, ok := table[strings.ToLower(ref)]
	return f, ok
}

// Resolve maps a dotted or bare field reference to its canonical triple,
// scanning only schemas reachable from the given root. A bare reference
// defined by several reachable schemas resolves to the one with the lowest
// priority; a priority tie is an AmbiguousFieldError and the caller must
// qualify the reference with the relation alias.
func (fr *FieldResolver) Resolve(root, ref string) (Resolution, error) {
	reachable := fr.reachableSet(root)

	if qualifier, field, ok := strings.Cut(ref, "."); ok {
		es, found := fr.snap.EntityForQualifier(qualifier)
		if !found || !reachable[strings.ToLower(es.Name)] {
			return Resolution{}, errors.NewUnknownFieldError(ref)
		}
		if f, found := fr.ResolveIn(es.Name, field); found {
			return fr.resolution(es, f), nil
		}
		if agg := fr.aggregationIn(es, field); agg != nil {
			return fr.aggResolution(es, agg), nil
		}
		return Resolution{}, errors.NewUnknownFieldError(ref)
	}

	var owners []aliasOwner
	for _, o := range fr.byAlias[strings.ToLower(ref)] {
		if reachable[strings.ToLower(o.entity.Name)] {
			owners = append(owners, o)
		}
	}

	if len(owners) > 0 {
		sort.SliceStable(owners, func(i, j int) bool {
			return owners[i].entity.Priority < owners[j].entity.Priority
		})
		if len(owners) > 1 && owners[0].entity.Priority == owners[1].entity.Priority {
			names := make([]string, 0, len(owners))
			for _, o := range owners {
				if o.entity.Priority == owners[0].entity.Priority {
					names = append(names, o.entity.Name)
				}
			}
			return Resolution{}, errors.NewAmbiguousFieldError(ref, names)
		}
		return fr.resolution(owners[0].entity, owners[0].field), nil
	}

	// Not a field: try schema-declared aggregation output aliases.
	var aggs []aggOwner
	for _, o := range fr.aggAliases[strings.ToLower(ref)] {
		if reachable[strings.ToLower(o.entity.Name)] {
			aggs = append(aggs, o)
		}
	}
	if len(aggs) > 1 {
		names := make([]string, len(aggs))
		for i, o := range aggs {
			names[i] = o.entity.Name
		}
		return Resolution{}, errors.NewAmbiguousFieldError(ref, names)
	}
	if len(aggs) == 1 {
		return fr.aggResolution(aggs[0].entity, aggs[0].spec), nil
	}

	return Resolution{}, errors.NewUnknownFieldError(ref)
}

func (fr *FieldResolver) resolution(es *EntitySchema, f *FieldDef) Resolution {
	return Resolution{
		Entity:     es.Name,
		Field:      f.Name,
		Type:       f.Type,
		Restricted: es.IsRestricted(f.Name),
	}
}

func (fr *FieldResolver) aggResolution(es *EntitySchema, agg *AggregationSpec) Resolution {
	res := Resolution{
		Entity:      es.Name,
		Field:       agg.Field,
		Aggregation: agg,
	}
	if f, ok := fr.ResolveIn(es.Name, agg.Field); ok {
		res.Type = f.Type
		res.Restricted = es.IsRestricted(f.Name)
	}
	return res
}

func (fr *FieldResolver) aggregationIn(es *EntitySchema, ref string) *AggregationSpec {
	for _, agg := range es.Aggregations {
		if strings.EqualFold(agg.Alias, ref) {
			return agg
		}
	}
	return nil
}

func (fr *FieldResolver) reachableSet(root string) map[string]bool {
	set := make(map[string]bool)
	if fr.snap.Graph == nil {
		for _, es := range fr.snap.All() {
			set[strings.ToLower(es.Name)] = true
		}
		return set
	}
	for _, name := range fr.snap.Graph.ReachableFrom(root) {
		set[strings.ToLower(name)] = true
	}
	return set
}
