package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the body shape
// never drifts. The actual encoding lives in internal/respond, which the
// auth middleware and the router fallbacks share.
//
// REQUEST HELPERS:
// decodeJSON reads a bounded body into a DTO; validateRequest runs the
// struct's `validate` tags. Both fail with apperror.ErrValidation, which
// writeError maps to 400.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/respond"
)

// maxBodyBytes caps request bodies. Jokes are short; 1 MiB is generous.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON name so error messages match
// what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	respond.JSON(w, status, data)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	respond.Error(w, logger, err)
}

// decodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields are rejected so typos do not silently do nothing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr  *json.SyntaxError
			typeErr    *json.UnmarshalTypeError
			maxByteErr *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body must not be empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		case errors.As(err, &typeErr):
			return apperror.ValidationFailed(typeErr.Field,
				fmt.Sprintf("%s has the wrong type", typeErr.Field))
		case errors.As(err, &maxByteErr):
			return apperror.ValidationFailed("body", "request body is too large")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return apperror.ValidationFailed(field, fmt.Sprintf("unknown field %q", field))
		default:
			return apperror.ValidationFailed("body", "request body could not be decoded")
		}
	}

	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// validateRequest runs the validate tags on req and converts the first
// failure into a ValidationFailed error.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("body", "request is invalid")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be %s characters or less", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return apperror.ValidationFailed(field, msg)
}
