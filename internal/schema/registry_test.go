package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

const testDoc = `
SCHEMAS:
  position:
    priority: 1
    mandatory_fields: [UID, LegId, BusinessDate]
    aggregation:
      - field: Quantity
        function: COUNT
        alias: total_quantity
    schema_fields:
      UID:
        field_aliases: [UniqueId]
        field_type: VARCHAR
      UIDType:
        field_type: VARCHAR
      LegId:
        field_type: INTEGER
      BusinessDate:
        field_aliases: [AsOfDate]
        field_type: DATE
      FirmAccountMnemonic:
        field_type: VARCHAR
      Quantity:
        field_type: INTEGER
    relations:
      - name: positionrisk
        alias: risk
        type: ONE_TO_ONE
        joinColumns:
          - name: UID
          - name: UIDType
          - name: LegId
          - name: BusinessDate
      - name: riskbasedpaa
        alias: paa
        type: ONE_TO_ONE
        joinColumns:
          - name: UID
          - name: UIDType
          - name: LegId
          - name: BusinessDate
      - name: profitloss
        alias: pnl
        type: ONE_TO_ONE
        joinColumns:
          - name: UID
          - name: UIDType
          - name: LegId
          - name: BusinessDate
      - name: dim_firmaccountmhl
        alias: account_hierarchy
        type: MANY_TO_ONE
        joinColumns:
          - source: FirmAccountMnemonic
            target: mnemonic
  positionrisk:
    priority: 2
    schema_fields:
      UID:
        field_type: VARCHAR
      UIDType:
        field_type: VARCHAR
      LegId:
        field_type: INTEGER
      BusinessDate:
        field_type: DATE
      MarkToMarketUSD:
        field_aliases: [MTM]
        field_type: DOUBLE
      DV01:
        field_type: DOUBLE
  riskbasedpaa:
    priority: 3
    restricted_attributes: [RiskClass]
    schema_fields:
      UID:
        field_type: VARCHAR
      UIDType:
        field_type: VARCHAR
      LegId:
        field_type: INTEGER
      BusinessDate:
        field_type: DATE
      PnL:
        field_type: DOUBLE
      RiskClass:
        field_type: VARCHAR
  profitloss:
    priority: 4
    schema_fields:
      UID:
        field_type: VARCHAR
      UIDType:
        field_type: VARCHAR
      LegId:
        field_type: INTEGER
      BusinessDate:
        field_type: DATE
      NewPnL:
        field_aliases: [new_pnl]
        field_type: DOUBLE
  dim_firmaccountmhl:
    priority: 5
    schema_fields:
      mnemonic:
        field_type: VARCHAR
      mgd_seg_lv14_desc:
        field_type: VARCHAR
`

type memorySource struct {
	data []byte
}

func (m *memorySource) Fetch(ctx context.Context) ([]byte, error) { return m.data, nil }
func (m *memorySource) Describe() string                          { return "memory" }

func mustSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := BuildSnapshot([]byte(testDoc))
	require.NoError(t, err)
	return snap
}

func TestBuildSnapshot(t *testing.T) {
	snap := mustSnapshot(t)

	all := snap.All()
	require.Len(t, all, 5)
	assert.Equal(t, "position", all[0].Name)
	assert.Equal(t, "dim_firmaccountmhl", all[4].Name)

	pos, ok := snap.Get("POSITION")
	require.True(t, ok)
	assert.Equal(t, 1, pos.Priority)
	assert.Len(t, pos.Fields, 6)
	assert.Len(t, pos.Relations, 4)
	require.Len(t, pos.Aggregations, 1)
	assert.Equal(t, "total_quantity", pos.Aggregations[0].Alias)
	assert.Equal(t, types.AggCount, pos.Aggregations[0].Func)

	paa, ok := snap.Get("riskbasedpaa")
	require.True(t, ok)
	assert.True(t, paa.IsRestricted("riskclass"))
	assert.False(t, paa.IsRestricted("PnL"))
}

func TestEntityForQualifier(t *testing.T) {
	snap := mustSnapshot(t)

	es, ok := snap.EntityForQualifier("risk")
	require.True(t, ok)
	assert.Equal(t, "positionrisk", es.Name)

	es, ok = snap.EntityForQualifier("ACCOUNT_HIERARCHY")
	require.True(t, ok)
	assert.Equal(t, "dim_firmaccountmhl", es.Name)

	es, ok = snap.EntityForQualifier("profitloss")
	require.True(t, ok)
	assert.Equal(t, "profitloss", es.Name)

	_, ok = snap.EntityForQualifier("nope")
	assert.False(t, ok)
}

func TestBuildSnapshotDeterministic(t *testing.T) {
	a := mustSnapshot(t)
	b := mustSnapshot(t)

	require.Len(t, b.All(), len(a.All()))
	for i := range a.All() {
		assert.Equal(t, a.All()[i].Name, b.All()[i].Name)
		assert.Equal(t, a.All()[i].Priority, b.All()[i].Priority)
	}
}

func TestBuildSnapshotDefaults(t *testing.T) {
	doc := `
SCHEMAS:
  orders:
    aggregation:
      - field: Amount
        function: SUM
    schema_fields:
      Amount:
        field_type: DOUBLE
    relations:
      - name: fills
        type: ONE_TO_ONE
        joinColumns:
          - name: Amount
  fills:
    schema_fields:
      Amount:
        field_type: DOUBLE
`
	snap, err := BuildSnapshot([]byte(doc))
	require.NoError(t, err)

	orders, _ := snap.Get("orders")
	assert.Equal(t, 999, orders.Priority)
	require.Len(t, orders.Aggregations, 1)
	assert.Equal(t, "sum_Amount", orders.Aggregations[0].Alias)
	require.Len(t, orders.Relations, 1)
	assert.Equal(t, "fills", orders.Relations[0].Alias)
}

func TestBuildSnapshotValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code string
	}{
		{
			name: "unknown field type",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: BLOB
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "no fields",
			doc: `
SCHEMAS:
  a:
    priority: 1
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "duplicate alias within schema",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_aliases: [shared]
        field_type: VARCHAR
      Y:
        field_aliases: [SHARED]
        field_type: VARCHAR
`,
			code: errors.CodeDuplicateAlias,
		},
		{
			name: "alias collides with field name",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
      Y:
        field_aliases: [x]
        field_type: VARCHAR
`,
			code: errors.CodeDuplicateAlias,
		},
		{
			name: "mandatory field not declared",
			doc: `
SCHEMAS:
  a:
    mandatory_fields: [Missing]
    schema_fields:
      X:
        field_type: VARCHAR
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "unsupported aggregation function",
			doc: `
SCHEMAS:
  a:
    aggregation:
      - field: X
        function: MEDIAN
    schema_fields:
      X:
        field_type: DOUBLE
`,
			code: errors.CodeUnsupportedAggregation,
		},
		{
			name: "aggregation field not declared",
			doc: `
SCHEMAS:
  a:
    aggregation:
      - field: Missing
        function: SUM
    schema_fields:
      X:
        field_type: DOUBLE
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "unknown cardinality",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: b
        type: MANY_TO_MANY
        joinColumns:
          - name: X
  b:
    schema_fields:
      X:
        field_type: VARCHAR
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "relation without join columns",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: b
        type: ONE_TO_ONE
  b:
    schema_fields:
      X:
        field_type: VARCHAR
`,
			code: errors.CodeInvalidSchema,
		},
		{
			name: "relation targets unknown schema",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: ghost
        type: ONE_TO_ONE
        joinColumns:
          - name: X
`,
			code: errors.CodeReferentialIntegrity,
		},
		{
			name: "join column does not resolve on target",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: b
        type: ONE_TO_ONE
        joinColumns:
          - name: X
  b:
    schema_fields:
      Y:
        field_type: VARCHAR
`,
			code: errors.CodeReferentialIntegrity,
		},
		{
			name: "relation cycle",
			doc: `
SCHEMAS:
  a:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: b
        type: ONE_TO_ONE
        joinColumns:
          - name: X
  b:
    schema_fields:
      X:
        field_type: VARCHAR
    relations:
      - name: a
        type: ONE_TO_ONE
        joinColumns:
          - name: X
`,
			code: errors.CodeRelationCycle,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildSnapshot([]byte(tc.doc))
			require.Error(t, err)
			assert.Equal(t, tc.code, errors.GetCode(err))
		})
	}
}

func TestRegistryLoadAndReload(t *testing.T) {
	src := &memorySource{data: []byte(testDoc)}
	registry := NewRegistry(src)

	assert.Nil(t, registry.Current())
	require.NoError(t, registry.Load(context.Background()))

	first := registry.Current()
	require.NotNil(t, first)
	assert.Len(t, first.All(), 5)

	// A failed reload must leave the previous snapshot serving.
	src.data = []byte("SCHEMAS:\n  broken:\n    schema_fields:\n      X:\n        field_type: BLOB\n")
	require.Error(t, registry.Load(context.Background()))
	assert.Same(t, first, registry.Current())

	// A successful reload swaps the snapshot.
	src.data = []byte(testDoc)
	require.NoError(t, registry.Load(context.Background()))
	assert.NotSame(t, first, registry.Current())
}
