package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/policy"
	"github.com/sakif/jokes-api/internal/repository"
)

const (
	MinPasswordLength     = 8
	MaxDisplayNameLength  = 120
	MaxEmailLength        = 254
	timingParityPlaintext = "not-a-real-password"
)

// UserService is the User Directory: registration, password login,
// external sign-in and role administration.
//
//	UserHandler (HTTP) → UserService → UserRepository (DB)
//	                                 ↘ PasswordService (argon2id)
//	                                 ↘ TokenService (JWT)
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	// dummyDigest is verified against when the email is unknown so that
	// "no such user" costs the same as "wrong password".
	dummyDigest string
}

// NewUserService creates a UserService with all required dependencies.
func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	dummy, err := passwords.Hash(timingParityPlaintext)
	if err != nil {
		logger.Warn("could not prepare timing-parity digest", slog.String("error", err.Error()))
	}

	return &UserService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		logger:      logger,
		dummyDigest: dummy,
	}
}

// AuthResult bundles the user with a freshly issued access token so the
// handler can answer a login in one step.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresIn time.Duration
}

// Register creates a password account with the default "user" role.
// Returns apperror.ErrConflict if the email is already taken, in any case.
func (s *UserService) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	displayName, err = validateDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	digest, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/users: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: digest,
		DisplayName:  displayName,
		Role:         model.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, storageError("creating user", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Authenticate checks an email and password.
//
// Every failure (unknown email, account without a password, wrong password)
// returns the same apperror.AuthFailure, and the unknown-email path still
// runs a full digest verification so response times do not reveal which
// case occurred.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, storageError("looking up user", err)
		}
		s.passwords.Verify(s.dummyDigest, password)
		return nil, apperror.AuthFailure()
	}

	if !user.HasPassword() {
		s.passwords.Verify(s.dummyDigest, password)
		return nil, apperror.AuthFailure()
	}
	if !s.passwords.Verify(user.PasswordHash, password) {
		return nil, apperror.AuthFailure()
	}

	return user, nil
}

// Login authenticates and issues an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// GetByID returns the user with the given id.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "user id is required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storageError("fetching user", err)
	}
	return user, nil
}

// ChangeRole sets the role of the account identified by targetEmail.
//
// The permission check comes first, so a non-admin gets Forbidden whatever
// the target. Then the role is validated, then the target looked up.
//
// The target's existing tokens keep their old role until they expire.
func (s *UserService) ChangeRole(ctx context.Context, actor model.Actor, targetEmail, newRole string) (*model.User, error) {
	if actor.Anonymous() {
		return nil, apperror.Unauthenticated("authentication required")
	}
	if !policy.CanChangeRole(actor.Role) {
		return nil, apperror.Forbidden("only admins can change roles")
	}

	role, ok := model.ParseRole(strings.TrimSpace(newRole))
	if !ok {
		return nil, apperror.ValidationFailed("role",
			fmt.Sprintf("role must be one of %s", joinRoles()))
	}

	target, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(targetEmail))
	if err != nil {
		return nil, storageError("looking up user", err)
	}

	previous := target.Role
	target, err = s.users.UpdateUser(ctx, target.ID, model.UserUpdate{Role: &role})
	if err != nil {
		return nil, storageError("updating user role", err)
	}

	s.logger.Info("user role changed",
		slog.String("actorID", actor.UserID),
		slog.String("userID", target.ID),
		slog.String("from", string(previous)),
		slog.String("to", string(role)),
	)
	return target, nil
}

// SignInExternal logs in with a profile asserted by an identity provider.
//
// Lookup order:
//  1. an account already linked to this identity
//  2. an account whose email matches, if the provider verified that email;
//     the identity is linked to it
//  3. otherwise a new "user" account without a password
func (s *UserService) SignInExternal(ctx context.Context, identity *model.ExternalIdentity) (*AuthResult, error) {
	if identity == nil || identity.Subject == "" || identity.Provider == "" {
		return nil, apperror.ValidationFailed("identity", "identity provider returned an incomplete profile")
	}
	key := identity.Key()

	user, err := s.users.GetUserByExternalID(ctx, key)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, storageError("looking up external identity", err)
	}

	email, err := validateEmail(identity.Email)
	if err != nil {
		return nil, err
	}

	if identity.EmailVerified {
		existing, err := s.users.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			return s.link(ctx, existing, key)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, storageError("looking up user", err)
		}
	}

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		name = string([]rune(name)[:MaxDisplayNameLength])
	}

	user = &model.User{
		Email:              email,
		DisplayName:        name,
		Role:               model.RoleUser,
		ExternalIdentityID: key,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, storageError("creating user", err)
	}

	s.logger.Info("user registered via external identity",
		slog.String("userID", user.ID),
		slog.String("provider", identity.Provider),
	)
	return s.issue(user)
}

func (s *UserService) link(ctx context.Context, user *model.User, key string) (*AuthResult, error) {
	if user.ExternalIdentityID != "" && user.ExternalIdentityID != key {
		return nil, apperror.Conflict("user", "email", user.Email)
	}

	user, err := s.users.UpdateUser(ctx, user.ID, model.UserUpdate{ExternalIdentityID: &key})
	if err != nil {
		return nil, storageError("linking external identity", err)
	}

	s.logger.Info("external identity linked", slog.String("userID", user.ID))
	return s.issue(user)
}

// EnsureAdmin creates an admin account, or promotes an existing account to
// admin and resets its password. created reports which happened.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, displayName string) (user *model.User, created bool, err error) {
	email, err = validateEmail(email)
	if err != nil {
		return nil, false, err
	}
	if err := validatePassword(password); err != nil {
		return nil, false, err
	}

	digest, err := s.passwords.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("service/users: hashing password: %w", err)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		admin := model.RoleAdmin
		update := model.UserUpdate{Role: &admin, PasswordHash: &digest}
		if name := strings.TrimSpace(displayName); name != "" {
			update.DisplayName = &name
		}
		promoted, err := s.users.UpdateUser(ctx, existing.ID, update)
		if err != nil {
			return nil, false, storageError("promoting user", err)
		}
		s.logger.Info("user promoted to admin", slog.String("userID", promoted.ID))
		return promoted, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, storageError("looking up user", err)
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = "Admin"
	}
	displayName, err = validateDisplayName(displayName)
	if err != nil {
		return nil, false, err
	}

	user = &model.User{
		Email:        email,
		PasswordHash: digest,
		DisplayName:  displayName,
		Role:         model.RoleAdmin,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, false, storageError("creating admin", err)
	}

	s.logger.Info("admin created", slog.String("userID", user.ID))
	return user, true, nil
}

func (s *UserService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/users: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token, ExpiresIn: s.tokens.TTL()}, nil
}

func validateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return "", apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d characters or less", auth.MaxPasswordLength))
	}
	return nil
}

func validateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("display_name", "display name is required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", apperror.ValidationFailed("display_name",
			fmt.Sprintf("display name must be %d characters or less", MaxDisplayNameLength))
	}
	return name, nil
}

func joinRoles() string {
	names := make([]string, len(model.Roles))
	for i, r := range model.Roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
