// Package policy holds the authorization rules for jokes and users.
//
// Every function is pure: it looks only at its arguments, performs no I/O
// and returns the same answer for the same inputs. Services call these at the
// start of each operation; nothing here knows about HTTP or storage.
//
// A role that is empty or not one of model.Roles carries no authority.
package policy

import "github.com/sakif/jokes-api/internal/model"

// View identifies how a joke is being read.
type View int

const (
	// ViewListing is the public, paginated list.
	ViewListing View = iota
	// ViewByID is a direct fetch of one joke.
	ViewByID
)

// CanCreateJoke reports whether role may author new jokes.
func CanCreateJoke(role model.Role) bool {
	return role == model.RoleContributor || role == model.RoleAdmin
}

// CanModifyJoke reports whether the actor may edit a joke written by authorID.
// Admins may edit anything; everyone else only their own jokes.
func CanModifyJoke(role model.Role, actorID, authorID string) bool {
	if role == model.RoleAdmin {
		return true
	}
	if !role.Valid() || actorID == "" {
		return false
	}
	return actorID == authorID
}

// CanDeleteJoke reports whether role may delete jokes. Only admins may.
func CanDeleteJoke(role model.Role) bool {
	return role == model.RoleAdmin
}

// CanChangeRole reports whether role may change another user's role.
func CanChangeRole(role model.Role) bool {
	return role == model.RoleAdmin
}

// CanViewUnpublished reports whether unpublished jokes are visible through
// the given view. A fetch by id returns any joke to anyone, anonymous
// included; the listing never shows unpublished jokes, whatever the role.
func CanViewUnpublished(_ model.Role, view View) bool {
	return view == ViewByID
}
