// Package handler contains the HTTP request handlers of the jokes API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path, query, JSON body)
//  2. Call the service layer with plain Go values
//  3. Write the HTTP response (status code, JSON body)
//
// Handlers hold no business rules. Who may do what is decided by the
// services through internal/policy; handlers only read the Actor that the
// auth middleware put in the request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/respond"
)

const healthTimeout = 2 * time.Second

// Pinger is anything whose liveness /health can check; *sqlite.DB is one.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetaHandler serves the static classification vocabulary and the
// liveness endpoints.
type MetaHandler struct {
	appName        string
	db             Pinger
	classification model.Classification
	logger         *slog.Logger
}

// NewMetaHandler creates a MetaHandler. db may be nil, in which case
// /health only reports that the process is up.
func NewMetaHandler(appName string, db Pinger, logger *slog.Logger) *MetaHandler {
	return &MetaHandler{
		appName:        appName,
		db:             db,
		classification: model.DefaultClassification(),
		logger:         logger,
	}
}

// HandleClassification lists the advisory values for each joke metadata field.
//
// HTTP: GET /api/v1/meta/classification
func (h *MetaHandler) HandleClassification(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.classification)
}

// HandlePing is a trivial liveness probe.
//
// HTTP: GET /api/v1/meta/ping
func (h *MetaHandler) HandlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}

// HandleHealth reports liveness, including whether the database answers.
//
// HTTP: GET /health
// RESPONSE: 200 {"status": "ok", "app": "..."} or 503 when the database is unreachable
func (h *MetaHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
			respond.Status(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"app":    h.appName,
	})
}
