package schema

import (
	"strings"

	"github.com/weftdb/weft/pkg/types"
)

// EntitySchema is a validated, immutable entity definition. Instances are
// owned by the registry snapshot after load and must not be mutated.
type EntitySchema struct {
	// Name is the unique schema name, also the physical table name.
	Name string

	// Priority orders fetch/resolution among schemas; lower resolves first.
	Priority int

	// Fields in declaration order.
	Fields []*FieldDef

	// MandatoryFields are canonical field names used as the default
	// aggregation grouping keys for this entity.
	MandatoryFields []string

	// RestrictedFields may never be projected or used in distinct-values
	// queries (canonical names, matched case-insensitively).
	RestrictedFields []string

	// Aggregations declared on this entity.
	Aggregations []*AggregationSpec

	// Relations to other entities in declaration order.
	Relations []*RelationSpec
}

// FieldDef is a single typed field with its case-insensitive aliases.
type FieldDef struct {
	Name    string
	Aliases []string
	Type    types.FieldType
}

// AggregationSpec is a schema-declared aggregation.
type AggregationSpec struct {
	Field string
	Func  types.AggFunc
	Alias string
}

// RelationSpec is a declared join to another entity.
type RelationSpec struct {
	// Target is the target entity name.
	Target string

	// Alias is the display name for the joined entity, usable as a field
	// qualifier in requests.
	Alias string

	Cardinality types.Cardinality

	JoinColumns []JoinColumn
}

// JoinColumn declares one key column of a join. Either Name is set (same
// field name on both sides) or Source and Target are set explicitly.
type JoinColumn struct {
	Name   string
	Source string
	Target string
}

// SourceField returns the field name on the declaring side.
func (jc JoinColumn) SourceField() string {
	if jc.Source != "" {
		return jc.Source
	}
	return jc.Name
}

// TargetField returns the field name on the target side.
func (jc JoinColumn) TargetField() string {
	if jc.Target != "" {
		return jc.Target
	}
	return jc.Name
}

// IsRestricted reports whether the canonical field name is restricted.
func (s *EntitySchema) IsRestricted(field string) bool {
	for _, r := range s.RestrictedFields {
		if strings.EqualFold(r, field) {
			return true
		}
	}
	return false
}

// IsMandatory reports whether the canonical field name is a mandatory
// (grouping) field of this entity.
func (s *EntitySchema) IsMandatory(field string) bool {
	for _, m := range s.MandatoryFields {
		if strings.EqualFold(m, field) {
			return true
		}
	}
	return false
}
