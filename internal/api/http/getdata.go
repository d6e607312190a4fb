package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weftdb/weft/internal/query/executor"
	"github.com/weftdb/weft/pkg/types"
)

// QueryEngine is the query surface the handlers need.
type QueryEngine interface {
	Execute(ctx context.Context, datasource string, req executor.Request) (*executor.Result, error)
	DistinctValues(ctx context.Context, datasource, field string, filters []executor.Filter) ([]interface{}, error)
}

// FilterModel is one request filter.
type FilterModel struct {
	Field    string        `json:"field"`
	Operator string        `json:"operator"`
	Values   []interface{} `json:"values"`
}

// SortModel is one requested sort key.
type SortModel struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// GetDataParams is the get-data request body.
type GetDataParams struct {
	Root     string        `json:"root,omitempty"`
	Fields   []string      `json:"fields"`
	FilterBy []FilterModel `json:"filterBy"`
	SortBy   []SortModel   `json:"sortBy"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// QueryResponse is the get-data response body.
type QueryResponse struct {
	Data       []types.Record `json:"data"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalCount int            `json:"total_count"`
	QueryID    string         `json:"query_id"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// GetDataHandler handles POST /v1/{datasource}/get-data.
type GetDataHandler struct {
	engine QueryEngine
}

// NewGetDataHandler creates a get-data handler over the query engine.
func NewGetDataHandler(engine QueryEngine) *GetDataHandler {
	return &GetDataHandler{engine: engine}
}

// ServeHTTP decodes the request, runs the query, and renders the page.
func (h *GetDataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	datasource := r.PathValue("datasource")
	if datasource == "" {
		writeError(w, http.StatusBadRequest, "datasource is required", "", requestID)
		return
	}

	var params GetDataParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if len(params.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required", "", requestID)
		return
	}
	if params.Page < 0 || params.PageSize < 0 {
		writeError(w, http.StatusBadRequest, "page and page_size must be positive", "", requestID)
		return
	}

	req := executor.Request{
		Root:     params.Root,
		Fields:   params.Fields,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, f := range params.FilterBy {
		req.Filters = append(req.Filters, executor.Filter{
			Field:    f.Field,
			Operator: f.Operator,
			Values:   f.Values,
		})
	}
	for _, s := range params.SortBy {
		req.Sort = append(req.Sort, executor.SortKey{Field: s.Field, Order: s.Order})
	}

	result, err := h.engine.Execute(r.Context(), datasource, req)
	if err != nil {
		writeWeftError(w, err, requestID)
		return
	}

	resp := QueryResponse{
		Data:       result.Rows,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalCount: result.TotalCount,
		QueryID:    result.QueryID,
		Warnings:   result.Warnings,
	}
	if resp.Data == nil {
		resp.Data = []types.Record{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DistinctValuesParams is the distinct-values request body.
type DistinctValuesParams struct {
	Field    string        `json:"field"`
	FilterBy []FilterModel `json:"filterBy"`
}

// DistinctValuesResponse is the distinct-values response body.
type DistinctValuesResponse struct {
	Field  string        `json:"field"`
	Values []interface{} `json:"values"`
}

// DistinctValuesHandler handles POST /v1/{datasource}/distinct-values.
type DistinctValuesHandler struct {
	engine QueryEngine
}

// NewDistinctValuesHandler creates a distinct-values handler.
func NewDistinctValuesHandler(engine QueryEngine) *DistinctValuesHandler {
	return &DistinctValuesHandler{engine: engine}
}

func (h *DistinctValuesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	datasource := r.PathValue("datasource")
	if datasource == "" {
		writeError(w, http.StatusBadRequest, "datasource is required", "", requestID)
		return
	}

	var params DistinctValuesParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if params.Field == "" {
		writeError(w, http.StatusBadRequest, "field is required", "", requestID)
		return
	}

	var filters []executor.Filter
	for _, f := range params.FilterBy {
		filters = append(filters, executor.Filter{
			Field:    f.Field,
			Operator: f.Operator,
			Values:   f.Values,
		})
	}

	values, err := h.engine.DistinctValues(r.Context(), datasource, params.Field, filters)
	if err != nil {
		writeWeftError(w, err, requestID)
		return
	}
	if values == nil {
		values = []interface{}{}
	}
	writeJSON(w, http.StatusOK, DistinctValuesResponse{Field: params.Field, Values: values})
}
