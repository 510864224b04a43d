package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, display_name, role, external_identity_id, created_at, updated_at`

// CreateUser inserts a new user, assigning its ID and timestamps.
//
// The email is normalised to lower case; the column is also COLLATE NOCASE,
// so uniqueness is case-insensitive either way. A duplicate email or
// external identity becomes apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now()
	user.ID = xid.New().String()
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		nullable(user.PasswordHash),
		user.DisplayName,
		string(user.Role),
		nullable(user.ExternalIdentityID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			if col == "users.external_identity_id" {
				return apperror.Conflict("user", "external identity", user.ExternalIdentityID)
			}
			return apperror.Conflict("user", "email", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := db.getUser(ctx, `WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail looks a user up case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	u, err := db.getUser(ctx, `WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundBy("user", "email", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByExternalID finds the account linked to an identity-provider key.
func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == "" {
		return nil, apperror.NotFoundBy("user", "external identity", externalID)
	}
	u, err := db.getUser(ctx, `WHERE external_identity_id = ?`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundBy("user", "external identity", externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by external identity: %w", err)
	}
	return u, nil
}

// UpdateUser writes the fields set in update, refreshes updated_at and
// returns the user as stored. Email and created_at are never rewritten.
// An external identity already linked to another account is a Conflict.
func (db *DB) UpdateUser(ctx context.Context, id string, update model.UserUpdate) (*model.User, error) {
	var cols assignments
	cols.setOptional("password_hash", update.PasswordHash)
	if update.DisplayName != nil {
		cols.set("display_name", *update.DisplayName)
	}
	if update.Role != nil {
		cols.set("role", string(*update.Role))
	}
	cols.setOptional("external_identity_id", update.ExternalIdentityID)
	cols.set("updated_at", db.now())

	var user *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET `+cols.clause()+` WHERE id = ?`,
			append(cols.args, id)...,
		)
		if err != nil {
			if _, ok := uniqueViolation(err); ok && update.ExternalIdentityID != nil {
				return apperror.Conflict("user", "external identity", *update.ExternalIdentityID)
			}
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("user", id)
		}

		user, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`,
			id,
		))
		if err != nil {
			return fmt.Errorf("sqlite: reading back user %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where,
		arg,
	))
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u          model.User
		role       string
		hash       sql.NullString
		externalID sql.NullString
	)

	err := s.Scan(
		&u.ID,
		&u.Email,
		&hash,
		&u.DisplayName,
		&role,
		&externalID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.PasswordHash = hash.String
	u.ExternalIdentityID = externalID.String
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
