// Package health exposes liveness and readiness endpoints. Readiness checks
// the dependencies a request would actually touch.
package health

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/akanksha509/backend-task/pkg/platform/httputil"
)

// Pinger is anything that can report connectivity (the redis client).
type Pinger interface {
	Health(ctx context.Context) error
}

type Handler struct {
	logger *slog.Logger
	db     *sql.DB
	cache  Pinger
}

// New creates the health handler. cache may be nil when redis is not
// configured.
func New(db *sql.DB, cache Pinger, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, db: db, cache: cache}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness: database unreachable", "error", err.Error())
		checks["database"] = "unreachable"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness: redis unreachable", "error", err.Error())
			checks["redis"] = "unreachable"
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, checks)
}
