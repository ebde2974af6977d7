package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an error into one of the closed failure categories the
// pipeline reacts to. Everything that is not explicitly tagged falls back
// to Internal.
type Kind int

const (
	// Configuration errors are fatal at startup and surfaced per subsystem
	// on reload.
	Configuration Kind = iota
	// TransientExternal covers network timeouts, 5xx responses, and open
	// circuit breakers. Retried with backoff, never fatal.
	TransientExternal
	// PermanentExternal covers 4xx responses and unsupported formats.
	// Counted against an item's attempts.
	PermanentExternal
	// ContentInvalid marks subtitle payloads that fail parsing or health
	// validation. Rejected without retry.
	ContentInvalid
	// Contention marks a status claim lost to another worker. Silently
	// skipped.
	Contention
	// Internal marks bugs and invariant violations.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case TransientExternal:
		return "transient"
	case PermanentExternal:
		return "permanent"
	case ContentInvalid:
		return "content_invalid"
	case Contention:
		return "contention"
	default:
		return "internal"
	}
}

// Error tags an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind. Returns nil when err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf wraps a formatted error with the given kind.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify returns the Kind of err. Untagged network and deadline errors
// classify as transient; anything else untagged is Internal.
func Classify(err error) Kind {
	if err == nil {
		return Internal
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientExternal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return TransientExternal
	}
	return Internal
}

// IsRetryable reports whether the error should be retried with backoff.
func IsRetryable(err error) bool {
	return Classify(err) == TransientExternal
}

// FromHTTPStatus maps an HTTP status code to a Kind. 429 is treated like a
// 5xx: the provider is telling us to back off, not that the request is
// malformed.
func FromHTTPStatus(status int) Kind {
	switch {
	case status == 429:
		return TransientExternal
	case status >= 500:
		return TransientExternal
	case status >= 400:
		return PermanentExternal
	default:
		return Internal
	}
}
