package http

import (
	"context"
	"net/http"
	"time"

	"github.com/weftdb/weft/internal/observability"
	"github.com/weftdb/weft/internal/schema"
)

// SchemaRegistry is the registry surface the admin handlers need.
type SchemaRegistry interface {
	Load(ctx context.Context) error
	Current() *schema.Snapshot
}

// ReloadResponse reports the outcome of a schema reload.
type ReloadResponse struct {
	Status   string    `json:"status"`
	Entities int       `json:"entities"`
	LoadedAt time.Time `json:"loaded_at"`
}

// SchemaReloadHandler handles POST /v1/admin/schema/reload. A failed
// reload leaves the previous snapshot serving and reports the validation
// error.
type SchemaReloadHandler struct {
	registry SchemaRegistry
}

// NewSchemaReloadHandler creates a schema reload handler.
func NewSchemaReloadHandler(registry SchemaRegistry) *SchemaReloadHandler {
	return &SchemaReloadHandler{registry: registry}
}

func (h *SchemaReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if err := h.registry.Load(r.Context()); err != nil {
		writeWeftError(w, err, requestID)
		return
	}

	snap := h.registry.Current()
	writeJSON(w, http.StatusOK, ReloadResponse{
		Status:   "reloaded",
		Entities: len(snap.All()),
		LoadedAt: snap.LoadedAt,
	})
}

// StatsHandler handles GET /v1/admin/stats, exposing per-entity fetch
// statistics.
type StatsHandler struct {
	stats *observability.FetchStats
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(stats *observability.FetchStats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": h.stats.Snapshot(),
	})
}

// HealthHandler reports liveness and whether a schema snapshot is loaded.
type HealthHandler struct {
	registry SchemaRegistry
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(registry SchemaRegistry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "no schema loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"entities":  len(snap.All()),
		"roots":     snap.Graph.Roots(),
		"loaded_at": snap.LoadedAt,
	})
}
