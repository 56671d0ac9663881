package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/pinboard/internal/apperror"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler serves the liveness probe and the JSON fallbacks for
// unmatched routes.
type HealthHandler struct {
	responder
	db Pinger
}

func NewHealthHandler(db Pinger, logger *slog.Logger, devMode bool) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: logger, devMode: devMode},
		db:        db,
	}
}

// HandleHealth pings the database.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		resp := ErrorResponse{Error: "unavailable", Message: "database unavailable"}
		if h.devMode {
			resp.Detail = err.Error()
		}
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Success:   true,
		Message:   "server is running",
		Timestamp: time.Now().UTC(),
	})
}

// HandleNotFound answers routes nothing matched.
func (h *HealthHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, &apperror.AppError{Err: apperror.ErrNotFound, Message: "route not found"})
}

// HandleMethodNotAllowed answers a known path with the wrong method.
func (h *HealthHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   "method_not_allowed",
		Message: "method " + r.Method + " not allowed on " + r.URL.Path,
	})
}
