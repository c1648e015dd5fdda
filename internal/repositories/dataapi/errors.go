// Package dataapi implements the remote-store repositories on top of the
// hosted relational data API client.
package dataapi

import (
	"context"
	"errors"
	"fmt"

	api "github.com/optima-bank/loyalty/internal/dataapi"
)

// Error implements repositories.RepositoryError for data-API backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing row.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool {
	return e != nil && e.conflict
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// wrapError annotates data API errors with repository semantics. Context
// cancellations are passed through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, api.ErrNoRows):
		e.notFound = true
	case errors.Is(err, api.ErrUnavailable):
		e.unavailable = true
	default:
		var remote *api.RemoteError
		if errors.As(err, &remote) {
			switch {
			case remote.IsNoRows():
				e.notFound = true
			case remote.Code == "23505":
				// Unique constraint violation.
				e.conflict = true
			}
		}
	}
	return e
}
