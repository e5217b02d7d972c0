// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientHistory = errors.New("insufficient price history")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrTimeout             = errors.New("operation timed out")
	ErrMalformedPayload    = errors.New("malformed provider payload")
	ErrRateLimited         = errors.New("rate limited")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDataNotFound        = errors.New("data not found")
	ErrCacheMiss           = errors.New("cache miss")
	ErrDatabaseError       = errors.New("database error")
	ErrInputValidation     = errors.New("input validation failed")
)

// FailureKind classifies why a symbol dropped out of a scan.
type FailureKind string

const (
	FailureInsufficientHistory FailureKind = "insufficient_history"
	FailureNotFound            FailureKind = "not_found"
	FailureTimeout             FailureKind = "timeout"
	FailureProvider            FailureKind = "provider_failure"
	FailureCanceled            FailureKind = "canceled"
	FailurePanic               FailureKind = "panic"
	FailureUnknown             FailureKind = "unknown"
)

// Classify maps a pipeline error onto a FailureKind.
func Classify(err error) FailureKind {
	var panicErr *PanicError
	var providerErr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &panicErr):
		return FailurePanic
	case errors.Is(err, ErrInsufficientHistory):
		return FailureInsufficientHistory
	case errors.Is(err, ErrSymbolNotFound), errors.Is(err, ErrDataNotFound):
		return FailureNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrRateLimited), errors.As(err, &providerErr):
		return FailureProvider
	default:
		return FailureUnknown
	}
}

// ProviderError represents a failure reported by a market-data provider.
type ProviderError struct {
	Provider   string
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error [%s] %s: status %d: %v", e.Provider, e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, symbol string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Symbol:     symbol,
		StatusCode: statusCode,
		Err:        err,
	}
}

// ValidationError represents a validation error. Configuration errors match
// ErrConfigInvalid; errors in caller input match ErrInputValidation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	input   bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.input {
		return ErrInputValidation
	}
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewInputError creates a ValidationError for a bad caller-supplied value.
func NewInputError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		input:   true,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// PanicError carries a recovered panic value from a per-symbol task.
type PanicError struct {
	Symbol string
	Value  interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while analyzing %s: %v", e.Symbol, e.Value)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps a storage failure so it matches both ErrDatabaseError
// and the driver error.
func DatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%w: %w", ErrDatabaseError, err), op)
}
