package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/internal/observability"
	"github.com/weftdb/weft/internal/query/executor"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/pkg/types"
)

const handlerDoc = `
SCHEMAS:
  position:
    priority: 1
    schema_fields:
      UID:
        field_type: VARCHAR
      Quantity:
        field_type: INTEGER
`

type stubEngine struct {
	result   *executor.Result
	values   []interface{}
	err      error
	lastDS   string
	lastReq  executor.Request
	lastArgs []executor.Filter
}

func (s *stubEngine) Execute(ctx context.Context, datasource string, req executor.Request) (*executor.Result, error) {
	s.lastDS = datasource
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubEngine) DistinctValues(ctx context.Context, datasource, field string, filters []executor.Filter) ([]interface{}, error) {
	s.lastDS = datasource
	s.lastArgs = filters
	if s.err != nil {
		return nil, s.err
	}
	return s.values, nil
}

type stubRegistry struct {
	snap    *schema.Snapshot
	loadErr error
	loads   int
}

func (s *stubRegistry) Load(ctx context.Context) error {
	s.loads++
	if s.loadErr != nil {
		return s.loadErr
	}
	snap, err := schema.BuildSnapshot([]byte(handlerDoc))
	if err != nil {
		return err
	}
	s.snap = snap
	return nil
}

func (s *stubRegistry) Current() *schema.Snapshot { return s.snap }

func newTestRouter(engine *stubEngine, registry *stubRegistry) http.Handler {
	return NewRouter(engine, registry, observability.NewFetchStats())
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetDataSuccess(t *testing.T) {
	engine := &stubEngine{
		result: &executor.Result{
			QueryID:    "q-123",
			Columns:    []string{"UID", "Quantity"},
			Rows:       []types.Record{{"UID": "u1", "Quantity": float64(10)}},
			TotalCount: 1,
			Page:       1,
			PageSize:   100,
			Warnings:   []string{"lookup join to \"dim\": duplicate target key"},
		},
	}
	router := newTestRouter(engine, &stubRegistry{})

	rec := postJSON(t, router, "/v1/pinot-prod/get-data", GetDataParams{
		Fields:   []string{"UID", "Quantity"},
		FilterBy: []FilterModel{{Field: "BusinessDate", Operator: "EQUAL", Values: []interface{}{"2024-01-15"}}},
		SortBy:   []SortModel{{Field: "Quantity", Order: "DESC"}},
		Page:     1,
		PageSize: 100,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "q-123", resp.QueryID)
	assert.Equal(t, 1, resp.TotalCount)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "u1", resp.Data[0]["UID"])
	assert.Len(t, resp.Warnings, 1)

	assert.Equal(t, "pinot-prod", engine.lastDS)
	require.Len(t, engine.lastReq.Filters, 1)
	assert.Equal(t, "BusinessDate", engine.lastReq.Filters[0].Field)
	require.Len(t, engine.lastReq.Sort, 1)
	assert.Equal(t, "DESC", engine.lastReq.Sort[0].Order)
}

func TestGetDataEmptyResultSerializesAsArray(t *testing.T) {
	engine := &stubEngine{
		result: &executor.Result{QueryID: "q-1", Page: 1, PageSize: 100},
	}
	router := newTestRouter(engine, &stubRegistry{})

	rec := postJSON(t, router, "/v1/pinot-prod/get-data", GetDataParams{Fields: []string{"UID"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestGetDataBadRequests(t *testing.T) {
	router := newTestRouter(&stubEngine{}, &stubRegistry{})

	rec := postJSON(t, router, "/v1/pinot-prod/get-data", GetDataParams{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/pinot-prod/get-data", bytes.NewReader([]byte("{not json")))
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestGetDataErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown field", werrors.NewUnknownFieldError("Nope"), http.StatusBadRequest},
		{"ambiguous field", werrors.NewAmbiguousFieldError("UID", []string{"a", "b"}), http.StatusBadRequest},
		{"type mismatch", werrors.NewTypeMismatchError("bad value"), http.StatusBadRequest},
		{"restricted field", werrors.New(werrors.ErrCategoryQuery, werrors.CodeRestrictedField, "restricted"), http.StatusForbidden},
		{"partial data", werrors.NewPartialDataError("positionrisk", nil), http.StatusBadGateway},
		{"deadline exceeded", werrors.NewDeadlineExceededError(nil), http.StatusGatewayTimeout},
		{"internal", werrors.NewInternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubEngine{err: tc.err}, &stubRegistry{})
			rec := postJSON(t, router, "/v1/pinot-prod/get-data", GetDataParams{Fields: []string{"UID"}})
			assert.Equal(t, tc.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, werrors.GetCode(tc.err), resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestDistinctValues(t *testing.T) {
	engine := &stubEngine{values: []interface{}{"ACC1", "ACC2"}}
	router := newTestRouter(engine, &stubRegistry{})

	rec := postJSON(t, router, "/v1/pinot-prod/distinct-values", DistinctValuesParams{
		Field:    "FirmAccountMnemonic",
		FilterBy: []FilterModel{{Field: "BusinessDate", Operator: "EQUAL", Values: []interface{}{"2024-01-15"}}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DistinctValuesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FirmAccountMnemonic", resp.Field)
	assert.Equal(t, []interface{}{"ACC1", "ACC2"}, resp.Values)
	require.Len(t, engine.lastArgs, 1)
}

func TestDistinctValuesRequiresField(t *testing.T) {
	router := newTestRouter(&stubEngine{}, &stubRegistry{})
	rec := postJSON(t, router, "/v1/pinot-prod/distinct-values", DistinctValuesParams{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaReload(t *testing.T) {
	registry := &stubRegistry{}
	router := newTestRouter(&stubEngine{}, registry)

	rec := postJSON(t, router, "/v1/admin/schema/reload", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, registry.loads)

	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reloaded", resp.Status)
	assert.Equal(t, 1, resp.Entities)
}

func TestSchemaReloadFailureReportsValidationError(t *testing.T) {
	registry := &stubRegistry{
		loadErr: werrors.NewSchemaValidationError(werrors.CodeInvalidSchema, "unknown field type"),
	}
	router := newTestRouter(&stubEngine{}, registry)

	rec := postJSON(t, router, "/v1/admin/schema/reload", struct{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), werrors.CodeInvalidSchema)
}

func TestHealth(t *testing.T) {
	registry := &stubRegistry{}
	router := newTestRouter(&stubEngine{}, registry)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, registry.Load(context.Background()))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"roots":["position"]`)
}

func TestStatsEndpoint(t *testing.T) {
	stats := observability.NewFetchStats()
	router := NewRouter(&stubEngine{}, &stubRegistry{}, stats)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "entities")
}
