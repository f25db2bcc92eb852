package livequery

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors absorbed by a LiveQuery.
type ErrorCode string

const (
	// ErrCodeStoreUnavailable indicates the source could not evaluate the
	// effective query for a bind.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeChangeFeedError indicates an established change feed failed.
	ErrCodeChangeFeedError ErrorCode = "CHANGE_FEED_ERROR"

	// ErrCodeInvalidQuery indicates the base query has no canonical form.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"
)

// Error is the error reported when a bind or its change feed fails.
//
// Error includes structured fields for diagnostics; Context renders them
// as the reporter's context map.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Collection is the queried collection.
	Collection string

	// Query is the readable form of the effective query.
	Query string

	// Pinned is the pinned id at bind time (empty when none).
	Pinned string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Collection != "" {
		msg += fmt.Sprintf(" (collection=%s)", e.Collection)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Context returns the reporter context for e.
func (e *Error) Context() map[string]string {
	ctx := map[string]string{
		"code":       string(e.Code),
		"collection": e.Collection,
		"query":      e.Query,
	}
	if e.Pinned != "" {
		ctx["pinned"] = e.Pinned
	}
	return ctx
}

// IsStoreUnavailable returns true if err is a store-unavailable error.
// Uses errors.As to handle wrapped errors.
func IsStoreUnavailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeStoreUnavailable
	}
	return false
}

// IsChangeFeedError returns true if err is a change-feed error.
// Uses errors.As to handle wrapped errors.
func IsChangeFeedError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeChangeFeedError
	}
	return false
}

// ProgrammingError is the panic value for caller contract violations:
// registering a second callback, or observing a closed query.
type ProgrammingError struct {
	Op      string
	Message string
}

// Error implements the error interface.
func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("livequery: %s: %s", e.Op, e.Message)
}
