// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, checks policy, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can swap
// in the in-memory fakes from the _test.go files.
//
// AUTHORIZATION:
// Every operation that needs a permission calls the matching policy.Can*
// function first and returns apperror.Forbidden when it says no. There is
// no route-level role middleware; the HTTP layer only establishes WHO the
// actor is (see auth.RequireAuth).
//
// ERRORS:
// Services return *apperror.AppError values. Anything the repository
// returns that is not already an AppError is a storage failure and is
// wrapped with apperror.Persistence; the HTTP layer logs the cause and
// answers with a generic 500.
package service

import (
	"errors"

	"github.com/sakif/jokes-api/internal/apperror"
)

// storageError passes domain errors through untouched and wraps everything
// else as a persistence failure for op.
func storageError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Persistence(op, err)
}
