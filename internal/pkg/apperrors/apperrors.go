package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// The billing core reports failures through a small typed taxonomy so the
// route layer can map every error to a structured response without string
// matching. Entitlement denials are NOT errors; they are Decision values.

// ValidationError marks malformed, user-correctable input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError marks a missing organization, invoice, plan or subscription.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

// ForbiddenError marks a permission failure or billing hold.
type ForbiddenError struct{ Msg string }

func (e *ForbiddenError) Error() string { return e.Msg }

// ConflictError marks duplicate invoices and lost quota races.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

// ExternalServiceError marks gateway timeouts and upstream 5xx responses.
// Callers treat it as retryable.
type ExternalServiceError struct {
	Msg string
	Err error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// InvariantViolation marks states that should be impossible (two active
// subscriptions for one organization). Logged as a critical bug signal.
type InvariantViolation struct{ Msg string }

func (e *InvariantViolation) Error() string { return e.Msg }

func NewValidation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func NewForbidden(format string, args ...any) error {
	return &ForbiddenError{Msg: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func NewExternal(err error, format string, args ...any) error {
	return &ExternalServiceError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func NewInvariant(format string, args ...any) error {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps a taxonomy error to the response status the route layer
// should emit. Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		forbidden  *ForbiddenError
		conflict   *ConflictError
		external   *ExternalServiceError
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &forbidden):
		return fiber.StatusForbidden
	case errors.As(err, &conflict):
		return fiber.StatusConflict
	case errors.As(err, &external):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
