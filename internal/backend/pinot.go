package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weftdb/weft/internal/config"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

const pinotQueryPath = "/query/sql"

// PinotAdapter fetches records through a Pinot broker's SQL endpoint.
// The broker takes no bind parameters, so values are inlined as literals.
type PinotAdapter struct {
	name   string
	cfg    config.DatasourceConfig
	client *http.Client
}

// NewPinotAdapter creates a Pinot broker adapter.
func NewPinotAdapter(name string, cfg config.DatasourceConfig) *PinotAdapter {
	return &PinotAdapter{
		name: name,
		cfg:  cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the adapter in logs and stats.
func (p *PinotAdapter) Name() string {
	return "pinot:" + p.name
}

// pinotRequest is the broker's query payload.
type pinotRequest struct {
	SQL          string `json:"sql"`
	Trace        bool   `json:"trace"`
	QueryOptions string `json:"queryOptions"`
}

// pinotResponse is the subset of the broker response the adapter reads.
type pinotResponse struct {
	ResultTable *struct {
		DataSchema struct {
			ColumnNames []string `json:"columnNames"`
		} `json:"dataSchema"`
		Rows [][]interface{} `json:"rows"`
	} `json:"resultTable"`
	Exceptions []struct {
		ErrorCode int    `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"exceptions"`
}

// Fetch runs the request against the broker and decodes the result table.
func (p *PinotAdapter) Fetch(ctx context.Context, req FetchRequest) ([]types.Record, error) {
	query, params := BuildSelect(req)
	return p.run(ctx, InlineParams(query, params))
}

// FetchDistinct returns the distinct values of one column.
func (p *PinotAdapter) FetchDistinct(ctx context.Context, table, field string, filters []Filter) ([]types.Record, error) {
	query, params := BuildDistinct(table, field, filters)
	return p.run(ctx, InlineParams(query, params))
}

func (p *PinotAdapter) run(ctx context.Context, sql string) ([]types.Record, error) {
	payload, err := json.Marshal(pinotRequest{SQL: sql, Trace: false, QueryOptions: ""})
	if err != nil {
		return nil, werrors.NewInternalError("pinot: failed to encode query payload", err)
	}

	url := strings.TrimSuffix(p.cfg.URL, "/") + pinotQueryPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, werrors.NewInternalError("pinot: failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.User != "" {
		httpReq.SetBasicAuth(p.cfg.User, p.cfg.Password)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(p.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}

	var decoded pinotResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, werrors.NewFatalBackendError(p.Name()+": malformed broker response", err)
	}

	if len(decoded.Exceptions) > 0 {
		exc := decoded.Exceptions[0]
		return nil, werrors.NewFatalBackendError(
			fmt.Sprintf("%s: broker error %d: %s", p.Name(), exc.ErrorCode, exc.Message), nil)
	}

	// A response with no resultTable is a broker-side defect, never a
	// legitimate empty result (those come back with zero rows).
	if decoded.ResultTable == nil {
		return nil, werrors.NewFatalBackendError(p.Name()+": response has no resultTable", nil)
	}

	columns := decoded.ResultTable.DataSchema.ColumnNames
	records := make([]types.Record, 0, len(decoded.ResultTable.Rows))
	for _, row := range decoded.ResultTable.Rows {
		rec := make(types.Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
