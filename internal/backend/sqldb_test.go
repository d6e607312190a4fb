package backend

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE position (
		UID TEXT, LegId INTEGER, BusinessDate TEXT, Quantity REAL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO position VALUES
		('A', 1, '2024-01-15', 100.0),
		('B', 1, '2024-01-15', 200.0),
		('C', 2, '2024-01-16', 300.0)`)
	require.NoError(t, err)

	return NewSQLAdapterWithDB("test", db)
}

func TestSQLAdapterFetch(t *testing.T) {
	adapter := sqliteAdapter(t)

	records, err := adapter.Fetch(context.Background(), FetchRequest{
		Entity: "position",
		Table:  "position",
		Fields: []string{"UID", "Quantity"},
		Filters: []Filter{
			{Field: "BusinessDate", Operator: "EQUAL", Values: []interface{}{"2024-01-15"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0]["UID"])
	assert.Equal(t, 100.0, records[0]["Quantity"])
}

func TestSQLAdapterFetchInFilter(t *testing.T) {
	adapter := sqliteAdapter(t)

	records, err := adapter.Fetch(context.Background(), FetchRequest{
		Table:  "position",
		Fields: []string{"UID"},
		Filters: []Filter{
			{Field: "UID", Operator: "IN", Values: []interface{}{"A", "C"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSQLAdapterFetchDistinct(t *testing.T) {
	adapter := sqliteAdapter(t)

	records, err := adapter.FetchDistinct(context.Background(), "position", "BusinessDate", nil)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-15", records[0]["BusinessDate"])
	assert.Equal(t, "2024-01-16", records[1]["BusinessDate"])
}

func TestSQLAdapterEmptyResult(t *testing.T) {
	adapter := sqliteAdapter(t)

	records, err := adapter.Fetch(context.Background(), FetchRequest{
		Table:  "position",
		Fields: []string{"UID"},
		Filters: []Filter{
			{Field: "UID", Operator: "EQUAL", Values: []interface{}{"missing"}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}
