// Package apperr defines the errors profile controllers raise: fatal errors
// that stop a request with one translated message, and validation errors
// that collect several messages and redisplay the form.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LangError terminates a request with a translated message.
type LangError struct {
	Status int
	Key    string
	Args   []any
}

func (e *LangError) Error() string {
	if len(e.Args) == 0 {
		return e.Key
	}
	return fmt.Sprintf("%s %v", e.Key, e.Args)
}

// Fatal builds a LangError with an explicit status.
func Fatal(status int, key string, args ...any) *LangError {
	return &LangError{Status: status, Key: key, Args: args}
}

func NotFound(key string, args ...any) *LangError {
	return Fatal(http.StatusNotFound, key, args...)
}

func Forbidden(key string, args ...any) *LangError {
	return Fatal(http.StatusForbidden, key, args...)
}

func BadRequest(key string, args ...any) *LangError {
	return Fatal(http.StatusBadRequest, key, args...)
}

func Conflict(key string, args ...any) *LangError {
	return Fatal(http.StatusConflict, key, args...)
}

// Unauthorized is raised when a guest reaches a members-only page.
func Unauthorized() *LangError {
	return Fatal(http.StatusUnauthorized, "not_logged_in")
}

// Permission returns the error raised when the viewer lacks permission.
func Permission(permission string) *LangError {
	return Forbidden("cannot_" + permission)
}

// FieldError is one entry of a form's error list.
type FieldError struct {
	Field string `json:"field"`
	Key   string `json:"key"`
	Args  []any  `json:"args,omitempty"`
}

// Validation collects form errors before anything is saved.
type Validation struct {
	Errors []FieldError
}

func (v *Validation) Error() string {
	keys := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		keys[i] = e.Field + ": " + e.Key
	}
	return "validation failed: " + strings.Join(keys, ", ")
}

// Add appends an error for field.
func (v *Validation) Add(field, key string, args ...any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Key: key, Args: args})
}

// Has reports whether field already has an error.
func (v *Validation) Has(field string) bool {
	for _, e := range v.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when no errors were collected.
func (v *Validation) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Invalid is shorthand for a single-field validation error.
func Invalid(field, key string, args ...any) error {
	v := &Validation{}
	v.Add(field, key, args...)
	return v
}

// StatusOf maps err to an HTTP status.
func StatusOf(err error) int {
	var le *LangError
	if errors.As(err, &le) {
		return le.Status
	}
	var ve *Validation
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
