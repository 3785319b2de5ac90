// Package errors defines the engine's error taxonomy. Every failure that
// crosses a package boundary is classified with a code so that callers (HTTP
// handlers, the CLI, the retrieval path) can react without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode classifies an engine error.
type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION"            // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"             // 404
	ErrRateLimited       ErrorCode = "PROVIDER_RATE_LIMITED" // 429, retryable
	ErrProviderExhausted ErrorCode = "PROVIDER_EXHAUSTED"    // 502, retries spent
	ErrProviderContract  ErrorCode = "PROVIDER_CONTRACT"     // 502, response shape broken
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"        // 429
	ErrCapacityExceeded  ErrorCode = "CAPACITY_EXCEEDED"     // 429, per-user memory cap
	ErrDuplicate         ErrorCode = "DUPLICATE"             // 409, near-duplicate already stored
	ErrTimeout           ErrorCode = "TIMEOUT"               // 504, orchestrator-internal
	ErrInternal          ErrorCode = "INTERNAL"              // 500
)

// QuotaKind distinguishes which upload quota was exceeded.
type QuotaKind string

const (
	QuotaDocumentCount QuotaKind = "document_count"
	QuotaStorageBytes  QuotaKind = "storage_bytes"
	QuotaDailyUploads  QuotaKind = "daily_upload"
)

// EngineError is a structured error with a code, an HTTP-shaped status, and
// an optional wrapped cause.
type EngineError struct {
	Code    ErrorCode
	Status  int
	Message string
	Kind    QuotaKind // set only for QUOTA_EXCEEDED
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As chains.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewValidation creates a 400 error for bad input or bad configuration.
// Validation errors are never retried.
func NewValidation(format string, args ...any) *EngineError {
	return &EngineError{
		Code:    ErrValidation,
		Status:  400,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFound creates a 404 error for an entity that is absent or not owned
// by the caller. The two cases are deliberately indistinguishable.
func NewNotFound(resource, id string) *EngineError {
	return &EngineError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewRateLimited creates a retryable 429 error for a provider rate-limit
// signal.
func NewRateLimited(provider string, err error) *EngineError {
	return &EngineError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: fmt.Sprintf("%s rate limited", provider),
		Err:     err,
	}
}

// NewProviderExhausted creates a 502 error after the retry budget for a
// provider is spent. The last underlying error is carried as the cause.
func NewProviderExhausted(provider string, attempts int, err error) *EngineError {
	return &EngineError{
		Code:    ErrProviderExhausted,
		Status:  502,
		Message: fmt.Sprintf("%s failed after %d attempts", provider, attempts),
		Err:     err,
	}
}

// NewProviderContract creates a 502 error for a provider response that
// violates the expected shape. This indicates an integration bug and is
// never retried.
func NewProviderContract(provider, msg string) *EngineError {
	return &EngineError{
		Code:    ErrProviderContract,
		Status:  502,
		Message: fmt.Sprintf("%s contract violation: %s", provider, msg),
	}
}

// NewQuotaExceeded creates a 429 error for one of the upload quotas. The
// kind tells the caller which quota tripped.
func NewQuotaExceeded(kind QuotaKind, msg string) *EngineError {
	return &EngineError{
		Code:    ErrQuotaExceeded,
		Status:  429,
		Message: msg,
		Kind:    kind,
	}
}

// NewCapacityExceeded creates a 429 error for the per-user memory cap.
func NewCapacityExceeded(cap int) *EngineError {
	return &EngineError{
		Code:    ErrCapacityExceeded,
		Status:  429,
		Message: fmt.Sprintf("memory capacity reached: %d", cap),
	}
}

// NewDuplicate creates a 409 error for a memory whose near-duplicate is
// already stored. Best-effort writers treat this as a silent skip.
func NewDuplicate(msg string) *EngineError {
	return &EngineError{
		Code:    ErrDuplicate,
		Status:  409,
		Message: msg,
	}
}

// NewTimeout creates a 504 error for an operation that outran its window.
// The orchestrator converts this to an empty result before it can reach the
// chat path.
func NewTimeout(op string, limit time.Duration) *EngineError {
	return &EngineError{
		Code:    ErrTimeout,
		Status:  504,
		Message: fmt.Sprintf("%s exceeded %s", op, limit),
	}
}

// NewInternal creates a 500 error for unexpected failures.
func NewInternal(err error) *EngineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &EngineError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is reports whether err or any error in its chain is an EngineError with
// the given code.
func Is(err error, code ErrorCode) bool {
	var e *EngineError
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// QuotaKindOf returns the quota kind carried by err, or "" when err is not a
// quota error.
func QuotaKindOf(err error) QuotaKind {
	var e *EngineError
	if stderrors.As(err, &e) && e.Code == ErrQuotaExceeded {
		return e.Kind
	}
	return ""
}
