package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/jokes-api/internal/respond"
)

// NotFound answers unknown routes with the standard JSON error body
// instead of chi's plain-text default.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respond.Status(w, http.StatusNotFound, "resource not found")
}

// MethodNotAllowed is the JSON counterpart of chi's 405 handler.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.Status(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Recoverer turns a panic in a handler into a logged 500 with the standard
// error body. http.ErrAbortHandler is re-panicked so net/http can abort the
// connection as intended.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
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

				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("requestID", chimiddleware.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)

				if r.Header.Get("Connection") != "Upgrade" {
					respond.Status(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
