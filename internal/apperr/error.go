package apperr

import (
	"errors"
	"fmt"
)

// Category is the stable, machine-checkable class of a rejected operation.
type Category string

const (
	CategoryAuthenticationRequired    Category = "authentication_required"
	CategoryPermissionDenied          Category = "permission_denied"
	CategoryNotFound                  Category = "not_found"
	CategoryValidationFailed          Category = "validation_failed"
	CategoryConflict                  Category = "conflict"
	CategoryUniqueConstraintExhausted Category = "unique_constraint_exhausted"
	CategoryInternal                  Category = "internal"
)

// Error is returned by services for every rejected or failed operation.
type Error struct {
	category Category
	code     string
	message  string
	field    string
	err      error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Category() Category {
	return e.category
}

// Code returns the dotted operation code, e.g. "conversations.claim.already_assigned".
func (e *Error) Code() string {
	return e.code
}

// Message returns the human-readable description of the failure.
func (e *Error) Message() string {
	if e.message == "" {
		return string(e.category)
	}
	return e.message
}

// Field names the offending input field for validation failures.
func (e *Error) Field() string {
	return e.field
}

// New builds an Error whose code is "<operation>.<reason>".
func New(category Category, operation, reason, message string, cause error) *Error {
	return &Error{
		category: category,
		code:     fmt.Sprintf("%s.%s", operation, reason),
		message:  message,
		err:      cause,
	}
}

// Invalid builds a validation failure pointing at a single input field.
func Invalid(operation, field, message string) *Error {
	e := New(CategoryValidationFailed, operation, "invalid_"+field, message, nil)
	e.field = field
	return e
}

// Forbidden builds a permission failure.
func Forbidden(operation, reason, message string) *Error {
	return New(CategoryPermissionDenied, operation, reason, message, nil)
}

// NotFound builds a missing-entity failure.
func NotFound(operation, entity string) *Error {
	return New(CategoryNotFound, operation, entity+"_not_found", entity+" not found", nil)
}

// Internal wraps an unexpected storage or dependency failure.
func Internal(operation, reason string, cause error) *Error {
	return New(CategoryInternal, operation, reason, "internal error", cause)
}

// CategoryOf reports the category of err, or CategoryInternal when err is not an *Error.
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.category
	}
	return CategoryInternal
}

// Is reports whether err carries the provided category.
func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}
