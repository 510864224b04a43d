// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// An account can log in with a password, through an external identity
// provider, or both. PasswordHash and ExternalIdentityID are both nullable;
// password login requires the former and external sign-in the latter.
//
// PasswordHash is tagged json:"-" so it can never leak into a response body.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"` // stored lower-cased
	PasswordHash       string    `json:"-"`
	DisplayName        string    `json:"display_name"`
	Role               Role      `json:"role"`
	ExternalIdentityID string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can use the password login path.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserUpdate names the account fields to change. Nil fields are left as
// stored, so concurrent updates of different fields do not overwrite each
// other.
type UserUpdate struct {
	PasswordHash       *string
	DisplayName        *string
	Role               *Role
	ExternalIdentityID *string
}

// Apply copies the set fields onto u.
func (up UserUpdate) Apply(u *User) {
	if up.PasswordHash != nil {
		u.PasswordHash = *up.PasswordHash
	}
	if up.DisplayName != nil {
		u.DisplayName = *up.DisplayName
	}
	if up.Role != nil {
		u.Role = *up.Role
	}
	if up.ExternalIdentityID != nil {
		u.ExternalIdentityID = *up.ExternalIdentityID
	}
}

// ExternalIdentity is a profile asserted by a third-party identity provider.
type ExternalIdentity struct {
	Provider      string // e.g. "google"
	Subject       string // provider's stable user id
	Email         string
	EmailVerified bool
	Name          string
}

// Key is the value stored in users.external_identity_id, namespaced by
// provider so ids from different providers never collide.
func (e ExternalIdentity) Key() string {
	return e.Provider + ":" + e.Subject
}
