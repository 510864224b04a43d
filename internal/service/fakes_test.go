package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Setting err makes
// every call fail the way a broken database would.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	nextID  int
	err     error
	updates int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	user.Email = strings.ToLower(user.Email)
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", "email", user.Email)
		}
		if user.ExternalIdentityID != "" && u.ExternalIdentityID == user.ExternalIdentityID {
			return apperror.Conflict("user", "external identity", user.ExternalIdentityID)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFoundBy("user", "email", email)
}

func (f *fakeUserRepo) GetUserByExternalID(_ context.Context, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if externalID != "" && u.ExternalIdentityID == externalID {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFoundBy("user", "external identity", externalID)
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, id string, update model.UserUpdate) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	update.Apply(u)
	u.UpdatedAt = time.Now()
	f.updates++
	c := *u
	return &c, nil
}

// seed stores a user directly, bypassing validation.
func (f *fakeUserRepo) seed(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Email: email, DisplayName: "Seeded", Role: role}
	if err := f.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return u
}

// fakeJokeRepo is an in-memory repository.JokeRepository. Jokes get strictly
// increasing CreatedAt values so listing order is deterministic.
type fakeJokeRepo struct {
	mu      sync.Mutex
	jokes   map[string]*model.Joke
	nextID  int
	clock   time.Time
	err     error
	updates int
	deletes int
}

func newFakeJokeRepo() *fakeJokeRepo {
	return &fakeJokeRepo{
		jokes: make(map[string]*model.Joke),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeJokeRepo) CreateJoke(_ context.Context, joke *model.Joke) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	joke.ID = fmt.Sprintf("joke-%03d", f.nextID)
	joke.CreatedAt = f.clock
	joke.UpdatedAt = f.clock
	stored := *joke
	f.jokes[joke.ID] = &stored
	return nil
}

func (f *fakeJokeRepo) GetJokeByID(_ context.Context, id string) (*model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jokes[id]
	if !ok {
		return nil, apperror.NotFound("joke", id)
	}
	c := *j
	return &c, nil
}

func (f *fakeJokeRepo) ListPublishedJokes(_ context.Context, filter model.JokeFilter, opts repository.ListOptions) ([]model.Joke, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}

	var matched []model.Joke
	for _, j := range f.jokes {
		if j.IsPublished && matches(j, filter) {
			matched = append(matched, *j)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].CreatedAt.After(matched[b].CreatedAt)
		}
		return matched[a].ID > matched[b].ID
	})

	total := len(matched)
	start := opts.Offset()
	if start >= total {
		return []model.Joke{}, total, nil
	}
	end := min(start+opts.PerPage, total)
	return matched[start:end], total, nil
}

func (f *fakeJokeRepo) UpdateJoke(_ context.Context, id string, patch model.JokePatch) (*model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jokes[id]
	if !ok {
		return nil, apperror.NotFound("joke", id)
	}
	patch.Apply(j)
	f.clock = f.clock.Add(time.Second)
	j.UpdatedAt = f.clock
	f.updates++
	c := *j
	return &c, nil
}

func (f *fakeJokeRepo) DeleteJoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.jokes[id]; !ok {
		return apperror.NotFound("joke", id)
	}
	delete(f.jokes, id)
	f.deletes++
	return nil
}

func matches(j *model.Joke, f model.JokeFilter) bool {
	eq := func(field *string, want string) bool {
		return want == "" || (field != nil && *field == want)
	}
	if !eq(j.Era, f.Era) || !eq(j.Region, f.Region) || !eq(j.AgeGroup, f.AgeGroup) ||
		!eq(j.Acceptability, f.Acceptability) || !eq(j.DeliveryType, f.DeliveryType) {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	for _, text := range []*string{&j.TextTN, j.TextFR, j.TextEN} {
		if text != nil && strings.Contains(strings.ToLower(*text), q) {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newTestUserService(t *testing.T, repo *fakeUserRepo) (*UserService, *auth.TokenService) {
	t.Helper()
	tokens := newTestTokens(t)
	return NewUserService(repo, tokens, auth.NewPasswordServiceForTest(), discardLogger()), tokens
}

func newTestJokeService(t *testing.T) (*JokeService, *fakeJokeRepo, *fakeUserRepo) {
	t.Helper()
	jokes := newFakeJokeRepo()
	users := newFakeUserRepo()
	return NewJokeService(jokes, users, discardLogger()), jokes, users
}

func actorFor(u *model.User) model.Actor {
	return model.Actor{UserID: u.ID, Role: u.Role}
}
