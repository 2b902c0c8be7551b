package bill

import (
	"errors"
	"net/http"
)

// Kind classifies errors returned across the service boundary
type Kind string

const (
	// KindUnauthenticated means the caller sent no valid session token
	KindUnauthenticated Kind = "unauthenticated"
	// KindInvalidArgument means the image was missing or not decodable
	KindInvalidArgument Kind = "invalid-argument"
	// KindInternal covers every other failure, upstream detail withheld
	KindInternal Kind = "internal"
)

// Status returns the callable protocol status name, e.g. "INVALID_ARGUMENT"
func (k Kind) Status() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus returns the HTTP status code for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus maps a callable status name back to a Kind
func KindFromStatus(status string) Kind {
	switch status {
	case "UNAUTHENTICATED":
		return KindUnauthenticated
	case "INVALID_ARGUMENT":
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// Error is the only error type the service returns. Its message is safe to
// show to clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

var (
	errUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "Login required"}
	errMissingImage    = &Error{Kind: KindInvalidArgument, Message: "Image is required"}
	errMalformedImage  = &Error{Kind: KindInvalidArgument, Message: "Image must be base64 encoded"}
	errInternal        = &Error{Kind: KindInternal, Message: "Failed to extract bill total"}
)

// KindOf returns the Kind of err, treating anything that is not an *Error as internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
