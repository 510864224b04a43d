package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/model"
)

// newTestDB returns a migrated in-memory database that is closed when the
// test ends. Every call gets its own empty database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stepClock makes db.now return base, base+1s, base+2s, ... so ordering
// tests do not depend on wall-clock resolution.
func stepClock(db *DB, base time.Time) {
	n := 0
	db.now = func() time.Time {
		t := base.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func createTestUser(t *testing.T, db *DB, email string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=64,t=1,p=1$c2FsdA$a2V5",
		DisplayName:  "Test User",
		Role:         role,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:        "  Amel@Example.COM ",
		PasswordHash: "digest",
		DisplayName:  "Amel",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("CreateUser() did not set timestamps")
	}
	if user.Email != "amel@example.com" {
		t.Errorf("Email = %q, want it lower-cased and trimmed", user.Email)
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want default %q", user.Role, model.RoleUser)
	}
}

func TestCreateUser_DuplicateEmailIgnoresCase(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "amel@example.com", model.RoleUser)

	dup := &model.User{Email: "AMEL@example.com", PasswordHash: "x", DisplayName: "Other"}
	err := db.CreateUser(context.Background(), dup)

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
}

func TestCreateUser_DuplicateExternalIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{Email: "a@example.com", DisplayName: "A", ExternalIdentityID: "google:1"}
	if err := db.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	second := &model.User{Email: "b@example.com", DisplayName: "B", ExternalIdentityID: "google:1"}
	err := db.CreateUser(ctx, second)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
}

func TestCreateUser_ManyWithoutExternalIdentity(t *testing.T) {
	db := newTestDB(t)

	// NULL external identities must not collide with each other.
	createTestUser(t, db, "one@example.com", model.RoleUser)
	createTestUser(t, db, "two@example.com", model.RoleUser)
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "fetch@example.com", model.RoleContributor)

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if found.Email != "fetch@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "fetch@example.com")
	}
	if found.Role != model.RoleContributor {
		t.Errorf("Role = %q, want %q", found.Role, model.RoleContributor)
	}
	if found.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, created.PasswordHash)
	}
	if !found.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, created.CreatedAt)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail_IgnoresCase(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "case@example.com", model.RoleUser)

	found, err := db.GetUserByEmail(context.Background(), "CASE@Example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Email: "g@example.com", DisplayName: "G", ExternalIdentityID: "google:42"}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	found, err := db.GetUserByExternalID(ctx, "google:42")
	if err != nil {
		t.Fatalf("GetUserByExternalID() error = %v", err)
	}
	if found.ID != user.ID {
		t.Errorf("ID = %q, want %q", found.ID, user.ID)
	}
	if found.HasPassword() {
		t.Error("external-only account should not have a password")
	}

	if _, err := db.GetUserByExternalID(ctx, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByExternalID(\"\") error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "promote@example.com", model.RoleUser)

	admin := model.RoleAdmin
	key := "google:7"
	updated, err := db.UpdateUser(ctx, user.ID, model.UserUpdate{Role: &admin, ExternalIdentityID: &key})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	for _, got := range []*model.User{updated, found} {
		if got.Role != model.RoleAdmin {
			t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
		}
		if got.ExternalIdentityID != "google:7" {
			t.Errorf("ExternalIdentityID = %q, want %q", got.ExternalIdentityID, "google:7")
		}
		if got.PasswordHash != user.PasswordHash {
			t.Error("UpdateUser() rewrote the password hash")
		}
		if got.DisplayName != "Test User" {
			t.Errorf("DisplayName = %q, want it untouched", got.DisplayName)
		}
	}
}

func TestUpdateUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	admin := model.RoleAdmin
	_, err := db.UpdateUser(context.Background(), "nonexistent", model.UserUpdate{Role: &admin})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateUser() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateUser_InvalidRoleRejectedBySchema(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "bad@example.com", model.RoleUser)

	bogus := model.Role("superuser")
	if _, err := db.UpdateUser(context.Background(), user.ID, model.UserUpdate{Role: &bogus}); err == nil {
		t.Fatal("UpdateUser() should reject a role outside the CHECK constraint")
	}
}

func TestUpdateUser_ExternalIdentityTaken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := createTestUser(t, db, "first@example.com", model.RoleUser)
	second := createTestUser(t, db, "second@example.com", model.RoleUser)

	key := "google:42"
	if _, err := db.UpdateUser(ctx, first.ID, model.UserUpdate{ExternalIdentityID: &key}); err != nil {
		t.Fatalf("UpdateUser(first) error = %v", err)
	}
	_, err := db.UpdateUser(ctx, second.ID, model.UserUpdate{ExternalIdentityID: &key})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateUser(second) error = %v, want ErrConflict", err)
	}
}

// A role change and a password reset prepared from the same stale read
// must not undo each other.
func TestUpdateUser_InterleavedWritersKeepEachOthersFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "both@example.com", model.RoleUser)

	stale, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	contributor := model.RoleContributor
	if _, err := db.UpdateUser(ctx, stale.ID, model.UserUpdate{Role: &contributor}); err != nil {
		t.Fatalf("UpdateUser(role) error = %v", err)
	}
	digest := "new-digest"
	if _, err := db.UpdateUser(ctx, stale.ID, model.UserUpdate{PasswordHash: &digest}); err != nil {
		t.Fatalf("UpdateUser(password) error = %v", err)
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Role != model.RoleContributor {
		t.Errorf("Role = %q, want %q", found.Role, model.RoleContributor)
	}
	if found.PasswordHash != "new-digest" {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, "new-digest")
	}
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	version, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
