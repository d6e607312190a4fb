// Package planner builds join plans over the relation graph for the query
// federation layer.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

// Step is one join in a plan: fetch the entity's records and merge them
// into the joined set through the resolved join columns.
type Step struct {
	// Entity is the joined entity's canonical name.
	Entity string

	// RelationAlias is the alias of the relation that introduced this step.
	RelationAlias string

	// Cardinality is the relation's declared cardinality.
	Cardinality types.Cardinality

	// Columns are the resolved join columns, source side on the parent.
	Columns []schema.ResolvedJoinColumn

	// Depth is the number of hops from the root. Steps at the same depth
	// have no data dependency on one another and may be fetched in parallel.
	Depth int

	// ParentIndex is the index of the parent step in the plan's Steps, or
	// -1 when the parent is the root entity.
	ParentIndex int

	// Optional marks lookup joins with left-join semantics: source rows
	// without a match are kept with the target fields absent.
	Optional bool
}

// JoinPlan is an ordered list of join steps rooted at the main entity.
// Steps appear in breadth-first order: every parent precedes its children,
// and all steps of depth N precede all steps of depth N+1.
type JoinPlan struct {
	// Root is the main entity, chosen by the caller as the lowest-priority
	// entity owning requested columns.
	Root string

	// Steps are the joins to perform, in execution order.
	Steps []Step
}

// Entities returns the root plus every joined entity, in plan order.
func (p *JoinPlan) Entities() []string {
	out := make([]string, 0, len(p.Steps)+1)
	out = append(out, p.Root)
	for _, s := range p.Steps {
		out = append(out, s.Entity)
	}
	return out
}

// MaxDepth returns the depth of the deepest step, or 0 for a plan with no
// joins.
func (p *JoinPlan) MaxDepth() int {
	max := 0
	for _, s := range p.Steps {
		if s.Depth > max {
			max = s.Depth
		}
	}
	return max
}

// StepsAtDepth returns the steps with the given depth, in plan order.
func (p *JoinPlan) StepsAtDepth(depth int) []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Depth == depth {
			out = append(out, s)
		}
	}
	return out
}

// Plan builds the join plan from root to the needed entities. Entities not
// in needed are joined only when they sit on the path to one that is; a
// needed entity not reachable from root is an error.
func Plan(snap *schema.Snapshot, root string, needed map[string]bool) (*JoinPlan, error) {
	rootSchema, ok := snap.Get(root)
	if !ok {
		return nil, fmt.Errorf("planner: unknown root entity %q", root)
	}

	type node struct {
		step     Step
		parent   int // index into nodes, -1 for root
		required bool
	}
	var nodes []node
	index := map[string]int{strings.ToLower(rootSchema.Name): -1}

	// Breadth-first expansion over the full reachable subgraph. Sibling
	// edges are ordered by target priority, then declaration order, so the
	// plan is deterministic for a given snapshot.
	frontier := []int{-1}
	depth := 0
	for len(frontier) > 0 {
		depth++
		type expansion struct {
			edge     *schema.Edge
			parent   int
			priority int
		}
		var wave []expansion

		for _, parentIdx := range frontier {
			parentName := rootSchema.Name
			if parentIdx >= 0 {
				parentName = nodes[parentIdx].step.Entity
			}
			for _, edge := range snap.Graph.Neighbors(parentName) {
				if _, seen := index[strings.ToLower(edge.To)]; seen {
					continue
				}
				to, _ := snap.Get(edge.To)
				index[strings.ToLower(edge.To)] = -2 // claimed for this wave
				wave = append(wave, expansion{edge: edge, parent: parentIdx, priority: to.Priority})
			}
		}

		sort.SliceStable(wave, func(i, j int) bool {
			return wave[i].priority < wave[j].priority
		})

		frontier = frontier[:0]
		for _, ex := range wave {
			idx := len(nodes)
			nodes = append(nodes, node{
				step: Step{
					Entity:        ex.edge.To,
					RelationAlias: ex.edge.Alias,
					Cardinality:   ex.edge.Cardinality,
					Columns:       ex.edge.Columns,
					Depth:         depth,
					ParentIndex:   ex.parent,
				},
				parent:   ex.parent,
				required: needed[strings.ToLower(ex.edge.To)],
			})
			index[strings.ToLower(ex.edge.To)] = idx
			frontier = append(frontier, idx)
		}
	}

	for name := range needed {
		if _, ok := index[name]; !ok && name != strings.ToLower(rootSchema.Name) {
			return nil, fmt.Errorf("planner: entity %q is not reachable from root %q", name, rootSchema.Name)
		}
	}

	// Keep only branches that lead to a needed entity: mark every ancestor
	// of a required node.
	keep := make([]bool, len(nodes))
	for i, n := range nodes {
		if !n.required {
			continue
		}
		for j := i; j >= 0; j = nodes[j].parent {
			keep[j] = true
		}
	}

	plan := &JoinPlan{Root: rootSchema.Name}
	remap := make([]int, len(nodes))
	for i, n := range nodes {
		if !keep[i] {
			remap[i] = -1
			continue
		}
		step := n.step
		if step.ParentIndex >= 0 {
			step.ParentIndex = remap[step.ParentIndex]
		}
		step.Optional = step.Cardinality == types.ManyToOne
		remap[i] = len(plan.Steps)
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}
