package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/weftdb/weft/internal/config"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

// SQLAdapter fetches records through database/sql. Used for relational
// datasources and in tests via the sqlite3 driver.
type SQLAdapter struct {
	name string
	db   *sql.DB
}

// NewSQLAdapter opens the configured database.
func NewSQLAdapter(name string, cfg config.DatasourceConfig) (*SQLAdapter, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to open datasource %q: %w", name, err)
	}
	return &SQLAdapter{name: name, db: db}, nil
}

// NewSQLAdapterWithDB wraps an already-open database handle.
func NewSQLAdapterWithDB(name string, db *sql.DB) *SQLAdapter {
	return &SQLAdapter{name: name, db: db}
}

// Name identifies the adapter in logs and stats.
func (s *SQLAdapter) Name() string {
	return "sql:" + s.name
}

// Close closes the underlying database.
func (s *SQLAdapter) Close() error {
	return s.db.Close()
}

// Fetch runs the request with bind parameters.
func (s *SQLAdapter) Fetch(ctx context.Context, req FetchRequest) ([]types.Record, error) {
	query, params := BuildSelect(req)
	return s.run(ctx, query, params)
}

// FetchDistinct returns the distinct values of one column.
func (s *SQLAdapter) FetchDistinct(ctx context.Context, table, field string, filters []Filter) ([]types.Record, error) {
	query, params := BuildDistinct(table, field, filters)
	return s.run(ctx, query, params)
}

func (s *SQLAdapter) run(ctx context.Context, query string, params []interface{}) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, werrors.NewTransientBackendError(s.Name()+": query failed", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, werrors.NewFatalBackendError(s.Name()+": failed to read columns", err)
	}

	var records []types.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, werrors.NewFatalBackendError(s.Name()+": failed to scan row", err)
		}

		rec := make(types.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, werrors.NewTransientBackendError(s.Name()+": row iteration failed", err)
	}
	return records, nil
}
