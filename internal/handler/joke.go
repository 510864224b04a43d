package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/service"
)

// JokeHandler exposes the joke collection.
//
// Reads are public; writes run behind auth.RequireAuth and the service
// decides what the actor is allowed to do.
type JokeHandler struct {
	jokes  *service.JokeService
	logger *slog.Logger
}

// NewJokeHandler creates a JokeHandler.
func NewJokeHandler(jokes *service.JokeService, logger *slog.Logger) *JokeHandler {
	return &JokeHandler{jokes: jokes, logger: logger}
}

// HandleList returns one page of published jokes.
//
// HTTP: GET /api/v1/jokes?era=&region=&age_group=&acceptability=&delivery_type=&q=&page=1&per_page=20
// RESPONSE: {"page", "per_page", "total", "items": [...]}
//
// page must be >= 1 and per_page within [1, 100]; anything else is a 400
// rather than a silent correction.
func (h *JokeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page", 1, 1, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	perPage, err := intParam(q.Get("per_page"), "per_page", service.DefaultPerPage, 1, service.MaxPerPage)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	filter := model.JokeFilter{
		Era:           q.Get("era"),
		Region:        q.Get("region"),
		AgeGroup:      q.Get("age_group"),
		Acceptability: q.Get("acceptability"),
		DeliveryType:  q.Get("delivery_type"),
		Query:         q.Get("q"),
	}

	result, err := h.jokes.List(r.Context(), filter, page, perPage)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleGet returns one joke by id, published or not.
//
// HTTP: GET /api/v1/jokes/{id}
func (h *JokeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	joke, err := h.jokes.GetByID(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, joke)
}

// HandleCreate stores a new joke authored by the caller.
//
// HTTP: POST /api/v1/jokes
// REQUEST BODY: {"text_tn": "...", "text_fr": "...", ..., "is_published": false}
func (h *JokeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var input model.JokePatch
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	joke, err := h.jokes.Create(r.Context(), actor, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, joke)
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /api/v1/jokes/{id}
//
// PRESENCE SEMANTICS:
// Decoding into model.JokePatch leaves a pointer nil when its key is absent
// (or null), so only the keys the client actually sent are applied.
func (h *JokeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var patch model.JokePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	joke, err := h.jokes.Update(r.Context(), actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, joke)
}

// HandleDelete permanently removes a joke. Admin only.
//
// HTTP: DELETE /api/v1/jokes/{id}
// RESPONSE: 204 No Content
func (h *JokeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	if err := h.jokes.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// intParam parses an optional integer query parameter. hi <= 0 means no
// upper bound.
func intParam(raw, name string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	if n < lo || (hi > 0 && n > hi) {
		msg := name + " must be at least " + strconv.Itoa(lo)
		if hi > 0 {
			msg = name + " must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)
		}
		return 0, apperror.ValidationFailed(name, msg)
	}
	return n, nil
}
