// Package etlerr defines the closed set of failure kinds the pipeline
// distinguishes, and helpers to classify arbitrary errors into them.
package etlerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind is a failure category. Log sites and retry policies branch on the
// kind, never on concrete error types.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindNotFound
	KindMalformedRequest
	KindVerification
	KindConfiguration
	KindService
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	case KindMalformedRequest:
		return "malformed_request"
	case KindVerification:
		return "verification"
	case KindConfiguration:
		return "configuration"
	case KindService:
		return "service"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with kind and op. A nil err yields a plain message error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err and wraps it with op. Errors that already carry a
// kind keep it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return New(Classify(err), op, err)
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// Classify maps err onto a Kind. Explicit kinds win; otherwise context,
// network and Google API errors are recognised.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if k := KindOf(err); k != KindUnknown {
		return k
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if k := classifyGoogle(err); k != KindUnknown {
		return k
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport
	}
	return KindUnknown
}

// Retryable reports whether another attempt may succeed. Configuration and
// malformed-request failures are permanent, as is caller cancellation.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case KindConfiguration, KindMalformedRequest, KindNotFound:
		return false
	default:
		return true
	}
}
