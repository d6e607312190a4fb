package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weftdb/weft/internal/config"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

const trinoStatementPath = "/v1/statement"

// TrinoAdapter fetches records through the Trino coordinator's REST
// statement protocol: POST the query, then follow nextUri until the
// result set is exhausted.
type TrinoAdapter struct {
	name   string
	cfg    config.DatasourceConfig
	client *http.Client
}

// NewTrinoAdapter creates a Trino coordinator adapter.
func NewTrinoAdapter(name string, cfg config.DatasourceConfig) *TrinoAdapter {
	return &TrinoAdapter{
		name: name,
		cfg:  cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name identifies the adapter in logs and stats.
func (t *TrinoAdapter) Name() string {
	return "trino:" + t.name
}

// trinoResponse is one page of the statement protocol.
type trinoResponse struct {
	Columns []struct {
		Name string `json:"name"`
	} `json:"columns"`
	Data    [][]interface{} `json:"data"`
	NextURI string          `json:"nextUri"`
	Error   *struct {
		Message   string `json:"message"`
		ErrorName string `json:"errorName"`
		ErrorType string `json:"errorType"`
	} `json:"error"`
}

// Fetch runs the request against the coordinator and drains all pages.
func (t *TrinoAdapter) Fetch(ctx context.Context, req FetchRequest) ([]types.Record, error) {
	query, params := BuildSelect(req)
	return t.run(ctx, InlineParams(query, params))
}

// FetchDistinct returns the distinct values of one column.
func (t *TrinoAdapter) FetchDistinct(ctx context.Context, table, field string, filters []Filter) ([]types.Record, error) {
	query, params := BuildDistinct(table, field, filters)
	return t.run(ctx, InlineParams(query, params))
}

func (t *TrinoAdapter) run(ctx context.Context, sql string) ([]types.Record, error) {
	url := strings.TrimSuffix(t.cfg.URL, "/") + trinoStatementPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(sql))
	if err != nil {
		return nil, werrors.NewInternalError("trino: failed to build request", err)
	}
	t.setHeaders(httpReq)

	var columns []string
	var records []types.Record

	for {
		page, err := t.page(httpReq)
		if err != nil {
			return nil, err
		}

		if page.Error != nil {
			msg := t.Name() + ": " + page.Error.ErrorName + ": " + page.Error.Message
			// Trino marks faults like worker loss EXTERNAL or INSUFFICIENT_RESOURCES.
			if page.Error.ErrorType == "EXTERNAL" || page.Error.ErrorType == "INSUFFICIENT_RESOURCES" {
				return nil, werrors.NewTransientBackendError(msg, nil)
			}
			return nil, werrors.NewFatalBackendError(msg, nil)
		}

		if columns == nil && len(page.Columns) > 0 {
			columns = make([]string, len(page.Columns))
			for i, c := range page.Columns {
				columns[i] = c.Name
			}
		}
		for _, row := range page.Data {
			rec := make(types.Record, len(columns))
			for i, col := range columns {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}

		if page.NextURI == "" {
			return records, nil
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, page.NextURI, nil)
		if err != nil {
			return nil, werrors.NewInternalError("trino: failed to build page request", err)
		}
		t.setHeaders(httpReq)
	}
}

func (t *TrinoAdapter) page(req *http.Request) (*trinoResponse, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(t.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(t.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(t.Name(), err)
	}

	var page trinoResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, werrors.NewFatalBackendError(t.Name()+": malformed statement response", err)
	}
	return &page, nil
}

func (t *TrinoAdapter) setHeaders(req *http.Request) {
	req.Header.Set("X-Trino-User", t.cfg.User)
	if t.cfg.Catalog != "" {
		req.Header.Set("X-Trino-Catalog", t.cfg.Catalog)
	}
	if t.cfg.Schema != "" {
		req.Header.Set("X-Trino-Schema", t.cfg.Schema)
	}
	if t.cfg.Password != "" {
		req.SetBasicAuth(t.cfg.User, t.cfg.Password)
	}
}
