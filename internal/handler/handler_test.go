package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/handler"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/repository/sqlite"
	"github.com/sakif/jokes-api/internal/respond"
	"github.com/sakif/jokes-api/internal/service"
)

// testEnv wires real services over an in-memory database, so handler tests
// exercise the same code paths as production minus the router.
type testEnv struct {
	db     *sqlite.DB
	logger *slog.Logger
	tokens *auth.TokenService
	users  *service.UserService
	jokes  *service.JokeService
	auth   *handler.AuthHandler
	joke   *handler.JokeHandler
	meta   *handler.MetaHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := service.NewUserService(db, tokens, auth.NewPasswordServiceForTest(), logger)
	jokes := service.NewJokeService(db, db, logger)

	return &testEnv{
		db:     db,
		logger: logger,
		tokens: tokens,
		users:  users,
		jokes:  jokes,
		auth:   handler.NewAuthHandler(users, nil, logger),
		joke:   handler.NewJokeHandler(jokes, logger),
		meta:   handler.NewMetaHandler("jokes-api", db, logger),
	}
}

// seedUser registers an account and gives it role.
func (e *testEnv) seedUser(t *testing.T, email string, role model.Role) model.Actor {
	t.Helper()
	ctx := context.Background()

	u, err := e.users.Register(ctx, email, "correct-horse", "Seed")
	require.NoError(t, err)
	if role != model.RoleUser {
		_, err = e.db.UpdateUser(ctx, u.ID, model.UserUpdate{Role: &role})
		require.NoError(t, err)
	}
	return model.Actor{UserID: u.ID, Role: role}
}

func (e *testEnv) seedJoke(t *testing.T, author model.Actor, published bool) *model.Joke {
	t.Helper()
	text := "nokta"
	j, err := e.jokes.Create(context.Background(), author, model.JokePatch{
		TextTN:      &text,
		IsPublished: &published,
	})
	require.NoError(t, err)
	return j
}

func newRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func as(req *http.Request, actor model.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) respond.ErrorBody {
	t.Helper()
	var body respond.ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, rr.Code, body.Code)
	assert.Equal(t, http.StatusText(rr.Code), body.Status)
	assert.NotEmpty(t, body.Message)
	return body
}
