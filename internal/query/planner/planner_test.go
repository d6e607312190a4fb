package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

const planDoc = `
SCHEMAS:
  trade:
    priority: 1
    mandatory_fields: [TradeId]
    schema_fields:
      TradeId:
        field_type: VARCHAR
      Book:
        field_type: VARCHAR
    relations:
      - name: valuation
        type: ONE_TO_ONE
        joinColumns:
          - name: TradeId
      - name: book_dim
        alias: book_info
        type: MANY_TO_ONE
        joinColumns:
          - source: Book
            target: BookCode
  valuation:
    priority: 2
    mandatory_fields: [TradeId]
    schema_fields:
      TradeId:
        field_type: VARCHAR
      PresentValue:
        field_type: DOUBLE
    relations:
      - name: sensitivity
        type: ONE_TO_ONE
        joinColumns:
          - name: TradeId
  sensitivity:
    priority: 3
    schema_fields:
      TradeId:
        field_type: VARCHAR
      Delta:
        field_type: DOUBLE
  book_dim:
    priority: 5
    schema_fields:
      BookCode:
        field_type: VARCHAR
      Desk:
        field_type: VARCHAR
`

func planSnapshot(t *testing.T) *schema.Snapshot {
	t.Helper()
	snap, err := schema.BuildSnapshot([]byte(planDoc))
	require.NoError(t, err)
	return snap
}

func TestPlanSingleJoin(t *testing.T) {
	snap := planSnapshot(t)

	plan, err := Plan(snap, "trade", map[string]bool{"valuation": true})
	require.NoError(t, err)

	assert.Equal(t, "trade", plan.Root)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "valuation", plan.Steps[0].Entity)
	assert.Equal(t, types.OneToOne, plan.Steps[0].Cardinality)
	assert.Equal(t, 1, plan.Steps[0].Depth)
	assert.Equal(t, -1, plan.Steps[0].ParentIndex)
	assert.False(t, plan.Steps[0].Optional)
}

func TestPlanIncludesIntermediateHops(t *testing.T) {
	snap := planSnapshot(t)

	// sensitivity is only reachable through valuation, so valuation must
	// be joined even though no requested field lives on it.
	plan, err := Plan(snap, "trade", map[string]bool{"sensitivity": true})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "valuation", plan.Steps[0].Entity)
	assert.Equal(t, 1, plan.Steps[0].Depth)
	assert.Equal(t, "sensitivity", plan.Steps[1].Entity)
	assert.Equal(t, 2, plan.Steps[1].Depth)
	assert.Equal(t, 0, plan.Steps[1].ParentIndex)
}

func TestPlanPrunesUnusedBranches(t *testing.T) {
	snap := planSnapshot(t)

	plan, err := Plan(snap, "trade", map[string]bool{"valuation": true})
	require.NoError(t, err)

	for _, s := range plan.Steps {
		assert.NotEqual(t, "book_dim", s.Entity)
		assert.NotEqual(t, "sensitivity", s.Entity)
	}
}

func TestPlanLookupJoinIsOptional(t *testing.T) {
	snap := planSnapshot(t)

	plan, err := Plan(snap, "trade", map[string]bool{"book_dim": true})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "book_dim", plan.Steps[0].Entity)
	assert.Equal(t, types.ManyToOne, plan.Steps[0].Cardinality)
	assert.True(t, plan.Steps[0].Optional)

	require.Len(t, plan.Steps[0].Columns, 1)
	assert.Equal(t, "Book", plan.Steps[0].Columns[0].Source)
	assert.Equal(t, "BookCode", plan.Steps[0].Columns[0].Target)
}

func TestPlanSiblingOrderByPriority(t *testing.T) {
	snap := planSnapshot(t)

	plan, err := Plan(snap, "trade", map[string]bool{"valuation": true, "book_dim": true})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "valuation", plan.Steps[0].Entity)
	assert.Equal(t, "book_dim", plan.Steps[1].Entity)
	assert.Equal(t, 1, plan.MaxDepth())
}

func TestPlanUnreachableEntity(t *testing.T) {
	snap := planSnapshot(t)

	_, err := Plan(snap, "valuation", map[string]bool{"book_dim": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestPlanNoJoins(t *testing.T) {
	snap := planSnapshot(t)

	plan, err := Plan(snap, "trade", nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, []string{"trade"}, plan.Entities())
	assert.Equal(t, 0, plan.MaxDepth())
}
