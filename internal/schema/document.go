package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the raw, loosely-typed schema document. It is decoded from
// YAML and immediately converted into validated EntitySchema values; no
// runtime type inference happens after load.
type Document struct {
	Schemas map[string]*SchemaDoc `yaml:"SCHEMAS"`
}

// SchemaDoc is one entity's declaration in the schema document.
type SchemaDoc struct {
	SchemaName           string          `yaml:"schema_name"`
	Priority             *int            `yaml:"priority"`
	MandatoryFields      []string        `yaml:"mandatory_fields"`
	RestrictedAttributes []string        `yaml:"restricted_attributes"`
	Aggregation          []*AggDoc       `yaml:"aggregation"`
	SchemaFields         yaml.Node       `yaml:"schema_fields"`
	Relations            []*RelationDoc  `yaml:"relations"`
}

// FieldDoc is one field's declaration.
type FieldDoc struct {
	FieldAliases       []string `yaml:"field_aliases"`
	FieldType          string   `yaml:"field_type"`
	SupportedOperators []string `yaml:"supported_operators"`
}

// AggDoc is one declared aggregation.
type AggDoc struct {
	Field    string `yaml:"field"`
	Function string `yaml:"function"`
	Alias    string `yaml:"alias"`
}

// RelationDoc is one declared relation.
type RelationDoc struct {
	Name        string           `yaml:"name"`
	Alias       string           `yaml:"alias"`
	Type        string           `yaml:"type"`
	JoinColumns []*JoinColumnDoc `yaml:"joinColumns"`
}

// JoinColumnDoc is one declared join column.
type JoinColumnDoc struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// orderedField pairs a field name with its declaration, preserving the
// document's declaration order (a plain map would lose it).
type orderedField struct {
	Name string
	Doc  *FieldDoc
}

// ParseDocument decodes a schema document from YAML bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: failed to parse document: %w", err)
	}
	if doc.Schemas == nil {
		return nil, fmt.Errorf("schema: document has no SCHEMAS section")
	}
	return &doc, nil
}

// orderedFields decodes the schema_fields mapping preserving declaration
// order. The yaml.Node contents alternate key and value nodes.
func (d *SchemaDoc) orderedFields() ([]orderedField, error) {
	if d.SchemaFields.Kind == 0 {
		return nil, nil
	}
	if d.SchemaFields.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema_fields must be a mapping")
	}

	fields := make([]orderedField, 0, len(d.SchemaFields.Content)/2)
	for i := 0; i+1 < len(d.SchemaFields.Content); i += 2 {
		keyNode := d.SchemaFields.Content[i]
		valNode := d.SchemaFields.Content[i+1]

		var fd FieldDoc
		if err := valNode.Decode(&fd); err != nil {
			return nil, fmt.Errorf("field %q: %w", keyNode.Value, err)
		}
		fields = append(fields, orderedField{Name: keyNode.Value, Doc: &fd})
	}
	return fields, nil
}
