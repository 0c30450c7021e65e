package lnd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/illuminodes/bright-lightning/pkg/stream"
)

var (
	// ErrInvalidPreimage is returned when a preimage is not 32 bytes of hex
	ErrInvalidPreimage = errors.New("lnd: preimage must be 32 bytes of hex")

	// ErrNoDefaultAccount is returned when the wallet lists no "default" account
	ErrNoDefaultAccount = errors.New("lnd: wallet has no default account")
)

// HTTPError represents a non-2xx answer from the REST API. When the node
// included its error body, Node carries the decoded code and message.
type HTTPError struct {
	StatusCode int
	Status     string
	Operation  string // e.g. "add invoice", "settle invoice"
	Node       *stream.ApplicationError
}

func (e *HTTPError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("%s failed: HTTP %d: %s", e.Operation, e.StatusCode, e.Node.Message)
	}
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Operation, e.StatusCode, e.Status)
}

func (e *HTTPError) Unwrap() error {
	if e.Node == nil {
		return nil
	}
	return e.Node
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, status, operation string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     status,
		Operation:  operation,
	}
}

// IsHTTPError checks if an error is an HTTPError
func IsHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}

// IsUnauthorized reports whether the node rejected the macaroon
func IsUnauthorized(err error) bool {
	var e *HTTPError
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return stream.IsConnectionRefused(err) && refusedWith(err, http.StatusUnauthorized, http.StatusForbidden)
}

// IsNotFound reports whether the node answered 404
func IsNotFound(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

func refusedWith(err error, codes ...int) bool {
	var e *stream.ConnectionRefusedError
	if !errors.As(err, &e) {
		return false
	}
	for _, code := range codes {
		if e.StatusCode == code {
			return true
		}
	}
	return false
}
