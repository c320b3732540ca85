package currency

import (
	"errors"
	"fmt"
)

// Causes carried by ConversionError.Err.
var (
	// ErrUnknownCurrency is returned when the code is malformed or the rate
	// source does not know it.
	ErrUnknownCurrency = errors.New("unknown currency code")

	// ErrInvalidRate is returned when the rate source answers with a rate that
	// is not a positive number.
	ErrInvalidRate = errors.New("invalid exchange rate")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUnavailable is returned when the rate source cannot be reached or keeps failing.
	ErrUnavailable = errors.New("rate source unavailable")

	// ErrTimeout is returned when the rate source does not answer within the gateway timeout.
	ErrTimeout = errors.New("rate source timed out")
)

// ConversionError is the single error type returned by Gateway.Convert.
type ConversionError struct {
	// Code is the source currency code.
	Code string

	// Reason is a human-readable explanation.
	Reason string

	// Err is one of the causes above, possibly wrapping the transport error.
	Err error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("currency: convert %s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("currency: convert %s: %s", e.Code, e.Reason)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// NewConversionError creates a new ConversionError.
func NewConversionError(code, reason string, err error) *ConversionError {
	return &ConversionError{
		Code:   code,
		Reason: reason,
		Err:    err,
	}
}
