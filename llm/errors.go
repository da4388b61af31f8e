package llm

import (
	"errors"
)

// Kind classifies why an invocation failed.
type Kind int

// Failure kinds. The set is closed: every error produced by this package
// carries exactly one of them.
const (
	// KindNetwork means the transport call itself could not complete.
	KindNetwork Kind = iota + 1

	// KindRateLimited means upstream answered 429 Too Many Requests.
	KindRateLimited

	// KindRetriesExhausted means every attempt allowed by the retry policy was rate limited.
	KindRetriesExhausted

	// KindUpstream covers any other non-success status or an unparsable body.
	KindUpstream

	// KindEmptyResult means upstream succeeded but produced no usable text.
	KindEmptyResult

	// KindInvalidResponseShape means the text did not contain the expected JSON payload.
	KindInvalidResponseShape
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindUpstream:
		return "upstream"
	case KindEmptyResult:
		return "empty_result"
	case KindInvalidResponseShape:
		return "invalid_response_shape"
	default:
		return "unknown"
	}
}

// Error is a classified invocation failure.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Message is the most specific human-readable description available.
	Message string

	// StatusCode is the HTTP status when one was received, 0 otherwise.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or 0 if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient returns true if the error is a rate limit that may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsFatal returns true if the error is classified and should not be retried.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k != 0 && k != KindRateLimited
}
