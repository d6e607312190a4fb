package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

// ResolvedJoinColumn is a join column with both sides resolved to
// canonical fields of their schemas.
type ResolvedJoinColumn struct {
	Source     string
	Target     string
	SourceType types.FieldType
	TargetType types.FieldType
}

// Edge is a directed relation from one schema to another, tagged with its
// cardinality and resolved join columns.
type Edge struct {
	From        string
	To          string
	Alias       string
	Cardinality types.Cardinality
	Columns     []ResolvedJoinColumn

	// ord is the relation's declaration position on the declaring schema.
	ord int
}

// RelationGraph is the directed join graph across entities. It is built
// once per snapshot; every join column is resolved eagerly and cycles are
// rejected at construction.
type RelationGraph struct {
	snap     *Snapshot
	edges    map[string][]*Edge // lowercase from-name, declaration order
	incoming map[string]int     // lowercase name -> incoming edge count
}

// buildRelationGraph resolves every relation of every schema and verifies
// the graph is acyclic from all roots.
func buildRelationGraph(snap *Snapshot) (*RelationGraph, error) {
	g := &RelationGraph{
		snap:     snap,
		edges:    make(map[string][]*Edge),
		incoming: make(map[string]int),
	}

	for _, es := range snap.All() {
		g.incoming[strings.ToLower(es.Name)] += 0
		for ord, rel := range es.Relations {
			target, ok := snap.Get(rel.Target)
			if !ok {
				return nil, errors.NewReferentialIntegrityError(errors.CodeReferentialIntegrity,
					fmt.Sprintf("schema %q: relation targets unknown schema %q", es.Name, rel.Target))
			}

			edge := &Edge{
				From:        es.Name,
				To:          target.Name,
				Alias:       rel.Alias,
				Cardinality: rel.Cardinality,
				ord:         ord,
			}

			for _, jc := range rel.JoinColumns {
				src, ok := snap.Resolver.ResolveIn(es.Name, jc.SourceField())
				if !ok {
					return nil, errors.NewReferentialIntegrityError(errors.CodeReferentialIntegrity,
						fmt.Sprintf("schema %q, relation %q: source join column %q does not resolve", es.Name, rel.Target, jc.SourceField()))
				}
				tgt, ok := snap.Resolver.ResolveIn(target.Name, jc.TargetField())
				if !ok {
					return nil, errors.NewReferentialIntegrityError(errors.CodeReferentialIntegrity,
						fmt.Sprintf("schema %q, relation %q: target join column %q does not resolve", es.Name, rel.Target, jc.TargetField()))
				}
				edge.Columns = append(edge.Columns, ResolvedJoinColumn{
					Source:     src.Name,
					Target:     tgt.Name,
					SourceType: src.Type,
					TargetType: tgt.Type,
				})
			}

			g.edges[strings.ToLower(es.Name)] = append(g.edges[strings.ToLower(es.Name)], edge)
			g.incoming[strings.ToLower(target.Name)]++
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// Neighbors returns the outgoing edges of an entity in declaration order.
func (g *RelationGraph) Neighbors(entityName string) []*Edge {
	return g.edges[strings.ToLower(entityName)]
}

// Roots returns the entities with no incoming edges, ordered by ascending
// priority then name.
func (g *RelationGraph) Roots() []string {
	var roots []string
	for _, es := range g.snap.All() {
		if g.incoming[strings.ToLower(es.Name)] == 0 {
			roots = append(roots, es.Name)
		}
	}
	return roots
}

// ReachableFrom returns the entities reachable from root in breadth-first
// order. Entities at the same depth are ordered by ascending priority,
// then by relation declaration order.
func (g *RelationGraph) ReachableFrom(root string) []string {
	rootSchema, ok := g.snap.Get(root)
	if !ok {
		return nil
	}

	visited := map[string]bool{strings.ToLower(rootSchema.Name): true}
	order := []string{rootSchema.Name}
	frontier := []string{rootSchema.Name}

	for len(frontier) > 0 {
		type candidate struct {
			name     string
			priority int
			ord      int
		}
		var next []candidate

		for _, name := range frontier {
			for _, edge := range g.Neighbors(name) {
				lower := strings.ToLower(edge.To)
				if visited[lower] {
					continue
				}
				visited[lower] = true
				to, _ := g.snap.Get(edge.To)
				next = append(next, candidate{name: to.Name, priority: to.Priority, ord: edge.ord})
			}
		}

		sort.SliceStable(next, func(i, j int) bool {
			if next[i].priority != next[j].priority {
				return next[i].priority < next[j].priority
			}
			return next[i].ord < next[j].ord
		})

		frontier = frontier[:0]
		for _, c := range next {
			order = append(order, c.name)
			frontier = append(frontier, c.name)
		}
	}

	return order
}

// checkAcyclic runs a depth-first traversal from every schema and rejects
// any back edge.
func (g *RelationGraph) checkAcyclic() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		lower := strings.ToLower(name)
		switch state[lower] {
		case done:
			return nil
		case inStack:
			return errors.NewReferentialIntegrityError(errors.CodeRelationCycle,
				fmt.Sprintf("relation cycle detected: %s -> %s", strings.Join(path, " -> "), name))
		}
		state[lower] = inStack
		for _, edge := range g.Neighbors(name) {
			if err := visit(edge.To, append(path, name)); err != nil {
				return err
			}
		}
		state[lower] = done
		return nil
	}

	// Visit every schema, not just the roots: a cycle may sit in a
	// component no root reaches.
	for _, es := range g.snap.All() {
		if err := visit(es.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
