package schema

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/internal/source"
	"github.com/weftdb/weft/pkg/types"
)

// Snapshot is an immutable, validated view of the schema document.
// Queries read a snapshot without locking; a reload publishes a new
// snapshot atomically and never affects in-flight queries.
type Snapshot struct {
	schemas  map[string]*EntitySchema // keyed by lowercase name
	ordered  []*EntitySchema          // ascending priority, then name
	aliases  map[string]string        // lowercase relation alias -> target entity name
	LoadedAt time.Time

	Resolver *FieldResolver
	Graph    *RelationGraph
}

// Get returns the schema with the given name (case-insensitive).
func (s *Snapshot) Get(name string) (*EntitySchema, bool) {
	es, ok := s.schemas[strings.ToLower(name)]
	return es, ok
}

// All returns every schema ordered by ascending priority, then name.
func (s *Snapshot) All() []*EntitySchema {
	return s.ordered
}

// EntityForQualifier resolves a field qualifier, which may be an entity
// name or a relation alias, to the entity it denotes.
func (s *Snapshot) EntityForQualifier(q string) (*EntitySchema, bool) {
	if es, ok := s.Get(q); ok {
		return es, true
	}
	if target, ok := s.aliases[strings.ToLower(q)]; ok {
		return s.Get(target)
	}
	return nil, false
}

// Registry loads and owns the current schema snapshot.
type Registry struct {
	src     source.Source
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry backed by the given document source.
// Call Load before serving queries.
func NewRegistry(src source.Source) *Registry {
	return &Registry{src: src}
}

// Load fetches and validates the schema document, then publishes it as the
// current snapshot. A failed load leaves the previous snapshot active.
func (r *Registry) Load(ctx context.Context) error {
	data, err := r.src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("registry: failed to fetch schema document from %s: %w", r.src.Describe(), err)
	}

	snap, err := BuildSnapshot(data)
	if err != nil {
		return err
	}

	r.current.Store(snap)
	log.Printf("registry: loaded %d entity schemas from %s", len(snap.ordered), r.src.Describe())
	return nil
}

// Current returns the active snapshot, or nil if Load has never succeeded.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// BuildSnapshot parses and validates a schema document and constructs the
// field resolver and relation graph. All load-time defects listed in the
// error table (bad type, duplicate alias or name, bad aggregation function,
// unresolved join column, relation cycle) fail here.
func BuildSnapshot(data []byte) (*Snapshot, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema, err.Error())
	}

	// Deterministic iteration: load twice, get the same snapshot.
	keys := make([]string, 0, len(doc.Schemas))
	for k := range doc.Schemas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	schemas := make(map[string]*EntitySchema, len(keys))
	aliases := make(map[string]string)

	for _, key := range keys {
		sd := doc.Schemas[key]
		es, err := buildEntitySchema(key, sd)
		if err != nil {
			return nil, err
		}

		lower := strings.ToLower(es.Name)
		if _, dup := schemas[lower]; dup {
			return nil, errors.NewSchemaValidationError(errors.CodeDuplicateSchema,
				fmt.Sprintf("duplicate schema name %q", es.Name))
		}
		schemas[lower] = es

		for _, rel := range es.Relations {
			if rel.Alias != "" {
				aliases[strings.ToLower(rel.Alias)] = rel.Target
			}
		}
	}

	ordered := make([]*EntitySchema, 0, len(schemas))
	for _, es := range schemas {
		ordered = append(ordered, es)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	snap := &Snapshot{
		schemas:  schemas,
		ordered:  ordered,
		aliases:  aliases,
		LoadedAt: time.Now(),
	}
	snap.Resolver = newFieldResolver(snap)

	graph, err := buildRelationGraph(snap)
	if err != nil {
		return nil, err
	}
	snap.Graph = graph

	return snap, nil
}

// buildEntitySchema converts one loosely-typed schema declaration into a
// validated EntitySchema.
func buildEntitySchema(key string, sd *SchemaDoc) (*EntitySchema, error) {
	name := sd.SchemaName
	if name == "" {
		name = key
	}

	priority := 999
	if sd.Priority != nil {
		priority = *sd.Priority
	}

	rawFields, err := sd.orderedFields()
	if err != nil {
		return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
			fmt.Sprintf("schema %q: %v", name, err))
	}
	if len(rawFields) == 0 {
		return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
			fmt.Sprintf("schema %q declares no fields", name))
	}

	es := &EntitySchema{
		Name:             name,
		Priority:         priority,
		MandatoryFields:  sd.MandatoryFields,
		RestrictedFields: sd.RestrictedAttributes,
	}

	// Alias uniqueness is checked case-insensitively across the schema's
	// canonical names and its whole alias set.
	seen := make(map[string]string)
	claim := func(alias, owner string) error {
		lower := strings.ToLower(alias)
		if prev, dup := seen[lower]; dup {
			return errors.NewSchemaValidationError(errors.CodeDuplicateAlias,
				fmt.Sprintf("schema %q: alias %q of field %q already used by field %q", name, alias, owner, prev))
		}
		seen[lower] = owner
		return nil
	}

	for _, rf := range rawFields {
		ft, err := types.ParseFieldType(rf.Doc.FieldType)
		if err != nil {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q, field %q: %v", name, rf.Name, err))
		}
		if err := claim(rf.Name, rf.Name); err != nil {
			return nil, err
		}
		for _, a := range rf.Doc.FieldAliases {
			if err := claim(a, rf.Name); err != nil {
				return nil, err
			}
		}
		es.Fields = append(es.Fields, &FieldDef{
			Name:    rf.Name,
			Aliases: rf.Doc.FieldAliases,
			Type:    ft,
		})
	}

	hasField := func(fname string) bool {
		for _, f := range es.Fields {
			if strings.EqualFold(f.Name, fname) {
				return true
			}
		}
		return false
	}

	for _, m := range sd.MandatoryFields {
		if !hasField(m) {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q: mandatory field %q is not declared", name, m))
		}
	}
	for _, rf := range sd.RestrictedAttributes {
		if !hasField(rf) {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q: restricted attribute %q is not declared", name, rf))
		}
	}

	for _, agg := range sd.Aggregation {
		fn, err := types.ParseAggFunc(agg.Function)
		if err != nil {
			return nil, errors.NewSchemaValidationError(errors.CodeUnsupportedAggregation,
				fmt.Sprintf("schema %q: %v", name, err))
		}
		if !hasField(agg.Field) {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q: aggregation field %q is not declared", name, agg.Field))
		}
		alias := agg.Alias
		if alias == "" {
			alias = strings.ToLower(agg.Function) + "_" + agg.Field
		}
		es.Aggregations = append(es.Aggregations, &AggregationSpec{
			Field: agg.Field,
			Func:  fn,
			Alias: alias,
		})
	}

	for _, rel := range sd.Relations {
		if rel.Name == "" {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q: relation with no target name", name))
		}
		card, err := types.ParseCardinality(rel.Type)
		if err != nil {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q, relation %q: %v", name, rel.Name, err))
		}
		if len(rel.JoinColumns) == 0 {
			return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
				fmt.Sprintf("schema %q, relation %q: no join columns declared", name, rel.Name))
		}
		alias := rel.Alias
		if alias == "" {
			alias = rel.Name
		}
		spec := &RelationSpec{
			Target:      rel.Name,
			Alias:       alias,
			Cardinality: card,
		}
		for _, jc := range rel.JoinColumns {
			if jc.Name == "" && (jc.Source == "" || jc.Target == "") {
				return nil, errors.NewSchemaValidationError(errors.CodeInvalidSchema,
					fmt.Sprintf("schema %q, relation %q: join column needs either name or source+target", name, rel.Name))
			}
			spec.JoinColumns = append(spec.JoinColumns, JoinColumn{
				Name:   jc.Name,
				Source: jc.Source,
				Target: jc.Target,
			})
		}
		es.Relations = append(es.Relations, spec)
	}

	return es, nil
}
