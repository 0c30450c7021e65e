package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned by operations attempted after the channel
	// has terminated, and by Next once the caller closed the channel.
	ErrConnectionClosed = errors.New("stream: connection closed")

	// ErrLivenessTimeout terminates a channel whose peer kept pinging without
	// sending any data frame for longer than the liveness threshold.
	ErrLivenessTimeout = errors.New("stream: liveness timeout, too many keepalives without data")
)

// HandshakeError indicates the upgrade request could not be built
type HandshakeError struct {
	Header string
	Reason string
}

func (e *HandshakeError) Error() string {
	if e.Header == "" {
		return fmt.Sprintf("stream: invalid handshake: %s", e.Reason)
	}
	return fmt.Sprintf("stream: invalid handshake header %s: %s", e.Header, e.Reason)
}

// ConnectionRefusedError indicates the node answered the upgrade request with
// a plain HTTP response instead of switching protocols.
type ConnectionRefusedError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("stream: upgrade to %s refused: HTTP %d: %s", e.URL, e.StatusCode, e.Status)
}

func (e *ConnectionRefusedError) Unwrap() error {
	return e.Err
}

// TransportError wraps network and TLS failures
type TransportError struct {
	Op  string // "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Direction tells which side of the channel a SerializationError happened on
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// SerializationError reports a payload that could not be encoded for sending,
// or (in strict mode only) an inbound frame matching neither envelope.
type SerializationError struct {
	Direction Direction
	Err       error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("stream: %s serialization failed: %v", e.Direction, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ApplicationError is the node's structured error envelope
type ApplicationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

// PeerClosedError reports a close frame received from the node
type PeerClosedError struct {
	Code int
	Text string
}

func (e *PeerClosedError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("stream: closed by peer (code %d)", e.Code)
	}
	return fmt.Sprintf("stream: closed by peer (code %d): %s", e.Code, e.Text)
}

// IsApplicationError checks if an error is an ApplicationError
func IsApplicationError(err error) bool {
	var e *ApplicationError
	return errors.As(err, &e)
}

// IsPeerClosed checks if an error is a PeerClosedError
func IsPeerClosed(err error) bool {
	var e *PeerClosedError
	return errors.As(err, &e)
}

// IsConnectionRefused checks if an error is a ConnectionRefusedError
func IsConnectionRefused(err error) bool {
	var e *ConnectionRefusedError
	return errors.As(err, &e)
}

// IsTransportError checks if an error is a TransportError
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsSerializationError checks if an error is a SerializationError
func IsSerializationError(err error) bool {
	var e *SerializationError
	return errors.As(err, &e)
}

// IsHandshakeError checks if an error is a HandshakeError
func IsHandshakeError(err error) bool {
	var e *HandshakeError
	return errors.As(err, &e)
}

// terminationReason gives a short label for logs and metrics
func terminationReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, ErrLivenessTimeout):
		return "liveness_timeout"
	case IsApplicationError(err):
		return "application_error"
	case IsPeerClosed(err):
		return "peer_closed"
	case IsSerializationError(err):
		return "serialization"
	case IsTransportError(err):
		return "transport"
	default:
		return "other"
	}
}
