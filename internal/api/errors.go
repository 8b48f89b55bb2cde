package api

import (
	"errors"
	"fmt"
)

// Kind classifies a backend call failure.
type Kind int

const (
	// KindNetwork means the request never produced an HTTP response
	// (connection refused, timeout, cancelled context).
	KindNetwork Kind = iota
	// KindHTTP means the backend answered with a non-2xx status.
	KindHTTP
	// KindRejected means a 2xx response whose body carried result:false.
	KindRejected
	// KindDecode means the response body (or token payload) was malformed.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindHTTP:
		return "http error"
	case KindRejected:
		return "rejected by backend"
	case KindDecode:
		return "decode failure"
	}
	return "unknown"
}

// Error is the single error type returned by Client methods.
type Error struct {
	Kind   Kind
	Op     string // endpoint name, e.g. "log-in"
	Status int    // HTTP status, set for KindHTTP
	cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	case KindNetwork, KindDecode:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

func netErr(op string, cause error) error {
	return &Error{Kind: KindNetwork, Op: op, cause: cause}
}

func httpErr(op string, status int) error {
	return &Error{Kind: KindHTTP, Op: op, Status: status}
}

func rejectedErr(op string) error {
	return &Error{Kind: KindRejected, Op: op}
}

func decodeErr(op string, cause error) error {
	return &Error{Kind: KindDecode, Op: op, cause: cause}
}
