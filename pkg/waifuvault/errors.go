package waifuvault

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Download 403 conditions. They are returned wrapped in an *APIError with
// status 403, so both errors.Is and errors.As work on them.
var (
	ErrPasswordRequired  = errors.New("this file requires a password to download")
	ErrPasswordIncorrect = errors.New("supplied password is incorrect")
)

// APIError is the error envelope returned by the service. Its fields are kept
// exactly as received.
type APIError struct {
	// Name is normally the HTTP exception the service raised.
	Name    string `json:"name"`
	Message string `json:"message"`
	Status  int    `json:"status"`

	cause error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("waifuvault %s (%d): %s", e.Name, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func forbidden(cause error) *APIError {
	return &APIError{
		Name:    "Forbidden",
		Message: cause.Error(),
		Status:  http.StatusForbidden,
		cause:   cause,
	}
}

// BuildError reports a request that could not be constructed. It is always
// raised before anything is sent.
type BuildError struct {
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s request: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure to reach the service, or a non-2xx reply
// whose body is not a service envelope. StatusCode is 0 when no response was
// received.
type TransportError struct {
	Op         string
	StatusCode int
	// RetryAfter is the delay advised by a Retry-After header, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that does not match any known envelope,
// or one that is valid but not legal for the endpoint that received it.
type ProtocolError struct {
	Endpoint string
	// Kind is the classified kind, KindUnknown when the body matched nothing.
	Kind   Kind
	Reason string
	// Body is the raw response, kept for diagnostics.
	Body []byte
}

func (e *ProtocolError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("malformed response: %s", e.Reason)
	}
	return fmt.Sprintf("%s: unexpected response: %s", e.Endpoint, e.Reason)
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err: the envelope status for
// service errors, the response status for transport errors, 0 otherwise.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
