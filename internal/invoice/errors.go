package invoice

import (
	"errors"
	"fmt"
)

// Error kinds returned by the lifecycle engine. Match them with errors.Is.
var (
	// ErrValidation is returned when a required field is missing or malformed.
	// Nothing is written.
	ErrValidation = errors.New("invalid invoice input")

	// ErrNotFound is returned when the referenced invoice does not exist or is soft-deleted.
	ErrNotFound = errors.New("invoice not found")

	// ErrConversion is returned when the currency gateway could not convert the total.
	// Nothing is written.
	ErrConversion = errors.New("currency conversion failed")

	// ErrConflict is returned when an invoice number is already held by another invoice.
	// Retrying with a fresh allocation may succeed.
	ErrConflict = errors.New("invoice number conflict")

	// ErrAlreadyDeleted is returned when deleting an invoice that is already deleted.
	ErrAlreadyDeleted = errors.New("invoice already deleted")

	// ErrBusy is returned when the status kept changing under a toggle until it
	// gave up. Nothing was written; the toggle can be retried.
	ErrBusy = errors.New("invoice status kept changing")
)

// Store-level errors. Store implementations return these so the engine can
// translate them into the kinds above.
var (
	// ErrNumberTaken is returned by Store.Insert when the unique number constraint rejects the row.
	ErrNumberTaken = errors.New("invoice number already taken")

	// ErrStatusChanged is returned by Store.CompareAndSetStatus when the stored
	// status no longer matches the expected one.
	ErrStatusChanged = errors.New("invoice status changed concurrently")
)

// Error wraps an engine failure with the operation and a human-readable reason.
type Error struct {
	// Kind is one of the Err* kinds above.
	Kind error

	// Op is the engine operation that failed (e.g., "Create", "ToggleStatus").
	Op string

	// Details provides additional context about the failure.
	Details string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("invoice: %s: %v", e.Op, e.Kind)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns both the kind and the cause so errors.Is matches either.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, details string, err error) *Error {
	return &Error{Kind: kind, Op: op, Details: details, Err: err}
}

// NotFound builds an ErrNotFound error for id.
func NotFound(op, id string) *Error {
	return newError(ErrNotFound, op, fmt.Sprintf("id %q", id), nil)
}

// Conflict builds an ErrConflict error for number.
func Conflict(op, number string, err error) *Error {
	return newError(ErrConflict, op, fmt.Sprintf("number %q is already in use", number), err)
}

// ConversionFailed builds an ErrConversion error wrapping the gateway failure.
func ConversionFailed(op string, err error) *Error {
	return newError(ErrConversion, op, "no changes were written", err)
}

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// wrapStore annotates an unexpected store failure with the operation name.
// Known kinds pass through unchanged.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	return fmt.Errorf("invoice: %s: store: %w", op, err)
}
