// Package repository declares the persistence capabilities the services need.
// Implementations live in sub-packages (sqlite); tests use in-memory fakes.
package repository

import (
	"context"
	"math"

	"github.com/sakif/jokes-api/internal/model"
)

// ListOptions is 1-indexed page pagination.
type ListOptions struct {
	Page    int
	PerPage int
}

// Offset is the number of rows to skip for this page. It saturates at
// math.MaxInt instead of wrapping, so a huge page is always past the end.
func (o ListOptions) Offset() int {
	if o.Page < 1 || o.PerPage < 1 {
		return 0
	}
	if o.Page-1 > math.MaxInt/o.PerPage {
		return math.MaxInt
	}
	return (o.Page - 1) * o.PerPage
}

// UserRepository stores accounts.
//
// CreateUser returns an apperror Conflict when the email (case-insensitive)
// or external identity is already taken. Getters return apperror NotFound.
// UpdateUser writes only the fields set in update and returns the stored row.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, update model.UserUpdate) (*model.User, error)
}

// JokeRepository stores jokes.
//
// ListPublishedJokes returns the requested page plus the total number of
// matches across all pages. UpdateJoke writes only the fields supplied in
// patch and returns the stored row.
type JokeRepository interface {
	CreateJoke(ctx context.Context, joke *model.Joke) error
	GetJokeByID(ctx context.Context, id string) (*model.Joke, error)
	ListPublishedJokes(ctx context.Context, filter model.JokeFilter, opts ListOptions) ([]model.Joke, int, error)
	UpdateJoke(ctx context.Context, id string, patch model.JokePatch) (*model.Joke, error)
	DeleteJoke(ctx context.Context, id string) error
}
