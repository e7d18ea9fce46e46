package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP layer can pick a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is the proxy's failure type. It keeps enough context to render a
// user-facing message without re-deriving it.
type Error struct {
	Kind     ErrorKind
	Username string
	Status   int
	Reason   string
	Cause    error
}

// NotFound reports that the upstream has no user with the given login.
func NotFound(username string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Username: username,
		Reason:   "GitHub user not found: " + username,
	}
}

// UpstreamFailure reports a non-success answer from the upstream API.
// status is zero when the upstream answered successfully but with an unusable body.
func UpstreamFailure(status int, reason string) *Error {
	if reason == "" {
		reason = fmt.Sprintf("GitHub API error: %d", status)
	}
	return &Error{
		Kind:   KindUpstream,
		Status: status,
		Reason: reason,
	}
}

// InternalFailure wraps transport and decoding problems.
func InternalFailure(reason string, cause error) *Error {
	return &Error{
		Kind:   KindInternal,
		Reason: reason,
		Cause:  cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindInternal
}
