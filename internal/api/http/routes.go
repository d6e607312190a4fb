package http

import (
	"net/http"

	"github.com/weftdb/weft/internal/observability"
)

// NewRouter assembles the API routes with the default middleware chain.
func NewRouter(engine QueryEngine, registry SchemaRegistry, stats *observability.FetchStats) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/{datasource}/get-data", NewGetDataHandler(engine))
	mux.Handle("POST /v1/{datasource}/distinct-values", NewDistinctValuesHandler(engine))
	mux.Handle("POST /v1/admin/schema/reload", NewSchemaReloadHandler(registry))
	mux.Handle("GET /v1/admin/stats", NewStatsHandler(stats))
	mux.Handle("GET /health", NewHealthHandler(registry))

	return DefaultMiddleware()(mux)
}
