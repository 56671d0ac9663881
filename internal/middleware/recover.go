package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// panicResponse mirrors handler.ErrorResponse. It is duplicated here so the
// middleware package does not import the handlers it wraps.
type panicResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Recover turns a panic in a handler into a JSON 500 so a single bad request
// cannot take the process down. The stack is always logged. It is only sent
// to the client when devMode is set.
//
// http.ErrAbortHandler is re-panicked: net/http uses it to abort a response
// on purpose and handles it silently.
func Recover(logger *slog.Logger, devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				logger.Error("panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("requestID", chimiddleware.GetReqID(r.Context())),
					slog.Any("panic", rec),
					slog.String("stack", string(stack)),
				)

				resp := panicResponse{
					Error:   "internal_error",
					Message: "an internal error occurred",
				}
				if devMode {
					resp.Detail = fmt.Sprintf("%v\n%s", rec, stack)
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(resp)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
