package types

import (
	"fmt"
	"strings"
)

// Cardinality describes how rows of a relation's two sides correspond.
type Cardinality int

const (
	// OneToOne is a strict key-equality merge: at most one match per key
	// tuple on both sides, no fan-out.
	OneToOne Cardinality = iota

	// ManyToOne is a lookup join: many source rows may reference the same
	// target row, and the target key is expected to be unique.
	ManyToOne
)

// ParseCardinality converts a schema-document relation type string.
func ParseCardinality(name string) (Cardinality, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ONE_TO_ONE":
		return OneToOne, nil
	case "MANY_TO_ONE":
		return ManyToOne, nil
	default:
		return 0, fmt.Errorf("unknown relation cardinality: %s", name)
	}
}

// String returns the schema-document spelling.
func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "ONE_TO_ONE"
	case ManyToOne:
		return "MANY_TO_ONE"
	}
	return "UNKNOWN"
}
