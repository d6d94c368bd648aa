package farmacia

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the identifier no longer resolves to an appointment.
	ErrNotFound = errors.New("farmacia: appointment not found")

	// ErrConflict means the remote rejected the request because of a state
	// precondition: the slot was taken between resolution and submission, or
	// the appointment is no longer Active.
	ErrConflict = errors.New("farmacia: conflicting appointment state")

	// ErrUnauthenticated means the credential was missing, expired or
	// rejected. Callers map this to a login redirect.
	ErrUnauthenticated = errors.New("farmacia: missing or rejected credential")
)

// NetworkError wraps a transport failure: no HTTP response was received.
// Retrying the same action is reasonable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("farmacia: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a remote rejection not covered by the sentinel errors:
// payload validation failures (4xx) and server faults (5xx), including
// malformed response bodies.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("farmacia: status %d", e.StatusCode)
	}
	return fmt.Sprintf("farmacia: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the failure looks transient (5xx).
func (e *APIError) Temporary() bool { return e.StatusCode >= 500 }

// IsRetryable reports whether re-issuing the same request may succeed:
// transport failures and server faults. Conflicts and not-found are not
// retryable; the underlying resource changed.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Temporary()
	}
	return false
}

func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch {
	case status == 401 || status == 403:
		if msg == "" {
			return fmt.Errorf("%w (status %d)", ErrUnauthenticated, status)
		}
		return fmt.Errorf("%w (status %d): %s", ErrUnauthenticated, status, msg)
	case status == 404:
		return ErrNotFound
	case status == 409:
		if msg == "" {
			return ErrConflict
		}
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return &APIError{StatusCode: status, Message: msg}
	}
}
