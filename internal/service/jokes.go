package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/policy"
	"github.com/sakif/jokes-api/internal/repository"
)

// Pagination bounds for the public listing.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// JokeService is the Joke Repository & Query Engine: the public listing
// plus the author/admin write paths.
type JokeService struct {
	jokes  repository.JokeRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewJokeService creates a JokeService. users is consulted on create to
// make sure the token's subject still has an account.
func NewJokeService(jokes repository.JokeRepository, users repository.UserRepository, logger *slog.Logger) *JokeService {
	return &JokeService{
		jokes:  jokes,
		users:  users,
		logger: logger,
	}
}

// JokePage is one page of the listing.
type JokePage struct {
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Total   int          `json:"total"`
	Items   []model.Joke `json:"items"`
}

// List returns published jokes matching filter, newest first.
//
// page < 1 is treated as 1; perPage is clamped into [1, MaxPerPage] with 0
// meaning DefaultPerPage. Asking for a page past the end is not an error:
// Items is empty and Total still counts every match.
func (s *JokeService) List(ctx context.Context, filter model.JokeFilter, page, perPage int) (*JokePage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	filter.Query = strings.TrimSpace(filter.Query)

	items, total, err := s.jokes.ListPublishedJokes(ctx, filter, repository.ListOptions{Page: page, PerPage: perPage})
	if err != nil {
		return nil, storageError("listing jokes", err)
	}
	if items == nil {
		items = []model.Joke{}
	}

	return &JokePage{Page: page, PerPage: perPage, Total: total, Items: items}, nil
}

// GetByID fetches one joke. Unpublished jokes are returned too, to anyone
// (including anonymous callers), as long as the id is known.
func (s *JokeService) GetByID(ctx context.Context, actor model.Actor, id string) (*model.Joke, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "joke id is required")
	}

	joke, err := s.jokes.GetJokeByID(ctx, id)
	if err != nil {
		return nil, storageError("fetching joke", err)
	}

	if !joke.IsPublished && !policy.CanViewUnpublished(actor.Role, policy.ViewByID) {
		return nil, apperror.NotFound("joke", id)
	}
	return joke, nil
}

// Create stores a new joke authored by actor. Only contributors and admins
// may create; text_tn is required and is_published defaults to false.
func (s *JokeService) Create(ctx context.Context, actor model.Actor, input model.JokePatch) (*model.Joke, error) {
	if actor.Anonymous() {
		return nil, apperror.Unauthenticated("authentication required")
	}
	if !policy.CanCreateJoke(actor.Role) {
		return nil, apperror.Forbidden("only contributors and admins can create jokes")
	}

	if input.TextTN == nil {
		return nil, apperror.ValidationFailed("text_tn", "text_tn is required")
	}
	if err := normalizeText(&input); err != nil {
		return nil, err
	}

	// The token may outlive the account it was issued for.
	if _, err := s.users.GetUserByID(ctx, actor.UserID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("account no longer exists")
		}
		return nil, storageError("checking author", err)
	}

	joke := &model.Joke{AuthorID: actor.UserID}
	input.Apply(joke)

	if err := s.jokes.CreateJoke(ctx, joke); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("account no longer exists")
		}
		return nil, storageError("creating joke", err)
	}

	s.logger.Info("joke created",
		slog.String("id", joke.ID),
		slog.String("authorID", joke.AuthorID),
		slog.Bool("published", joke.IsPublished),
	)
	return joke, nil
}

// Update applies a partial update. Only fields present in patch change;
// see model.JokePatch for the exact rules.
//
// Order of checks: the joke must exist (NotFound), then the actor must be
// its author or an admin (Forbidden), then the patch must be valid.
func (s *JokeService) Update(ctx context.Context, actor model.Actor, id string, patch model.JokePatch) (*model.Joke, error) {
	if actor.Anonymous() {
		return nil, apperror.Unauthenticated("authentication required")
	}

	joke, err := s.jokes.GetJokeByID(ctx, id)
	if err != nil {
		return nil, storageError("fetching joke", err)
	}

	if !policy.CanModifyJoke(actor.Role, actor.UserID, joke.AuthorID) {
		return nil, apperror.Forbidden("only the author or an admin can edit this joke")
	}

	if err := normalizeText(&patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return joke, nil
	}

	joke, err = s.jokes.UpdateJoke(ctx, id, patch)
	if err != nil {
		return nil, storageError("updating joke", err)
	}

	s.logger.Info("joke updated",
		slog.String("id", joke.ID),
		slog.String("actorID", actor.UserID),
	)
	return joke, nil
}

// Delete permanently removes a joke. Admin only; the role is checked before
// the joke is looked up.
func (s *JokeService) Delete(ctx context.Context, actor model.Actor, id string) error {
	if actor.Anonymous() {
		return apperror.Unauthenticated("authentication required")
	}
	if !policy.CanDeleteJoke(actor.Role) {
		return apperror.Forbidden("only admins can delete jokes")
	}

	if err := s.jokes.DeleteJoke(ctx, id); err != nil {
		return storageError("deleting joke", err)
	}

	s.logger.Info("joke deleted",
		slog.String("id", id),
		slog.String("actorID", actor.UserID),
	)
	return nil
}

// normalizeText trims a supplied text_tn and rejects it when nothing is left.
// A supplied text_tn cannot clear the field the way "" clears optional ones.
func normalizeText(p *model.JokePatch) error {
	if p.TextTN == nil {
		return nil
	}
	text := strings.TrimSpace(*p.TextTN)
	if text == "" {
		return apperror.ValidationFailed("text_tn", "text_tn must not be empty")
	}
	p.TextTN = &text
	return nil
}
