package stream

import (
	"bytes"
	"encoding/json"
)

// FrameKind is the classification of one inbound frame
type FrameKind int

const (
	// KindUnrecognized - matched neither envelope; dropped unless strict
	KindUnrecognized FrameKind = iota

	// KindResponse - {"result": T}
	KindResponse

	// KindError - {"error": {"code": int, "message": string}}
	KindError

	// KindKeepalive - protocol ping, no payload
	KindKeepalive
)

// String returns the string representation of FrameKind
func (k FrameKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindKeepalive:
		return "keepalive"
	default:
		return "unrecognized"
	}
}

// ResponseEnvelope wraps one successful payload
type ResponseEnvelope[T any] struct {
	Result T `json:"result"`
}

// ErrorEnvelope is the node's failure shape
type ErrorEnvelope struct {
	Error ApplicationError `json:"error"`
}

// Frame is one classified inbound frame
type Frame[R any] struct {
	Kind   FrameKind
	Result R
	Error  *ApplicationError
	Raw    []byte
}

// Event is what callers pull from a channel: a response or an error envelope
type Event[R any] struct {
	Kind   FrameKind
	Result R
	Error  *ApplicationError
}

// Classifier maps raw inbound text to a Frame for the response type R.
// It holds no state and is safe for concurrent use.
type Classifier[R any] struct{}

// envelope captures both envelope fields without committing to either shape
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// errorDetail uses pointers so missing fields can be told apart from zero values
type errorDetail struct {
	Code    *int    `json:"code"`
	Message *string `json:"message"`
}

var jsonNull = []byte("null")

// Classify decodes text as a success envelope first, then as an error
// envelope, and reports KindUnrecognized when neither matches.
func (Classifier[R]) Classify(text []byte) Frame[R] {
	frame := Frame[R]{Kind: KindUnrecognized, Raw: text}

	var env envelope
	if err := json.Unmarshal(text, &env); err != nil {
		return frame
	}

	if present(env.Result) {
		var result R
		if err := json.Unmarshal(env.Result, &result); err == nil {
			frame.Kind = KindResponse
			frame.Result = result
			return frame
		}
	}

	if present(env.Error) {
		var detail errorDetail
		if err := json.Unmarshal(env.Error, &detail); err == nil && detail.Code != nil && detail.Message != nil {
			frame.Kind = KindError
			frame.Error = &ApplicationError{Code: *detail.Code, Message: *detail.Message}
			return frame
		}
	}

	return frame
}

// Keepalive classifies a protocol ping; no payload is decoded
func (Classifier[R]) Keepalive() Frame[R] {
	return Frame[R]{Kind: KindKeepalive}
}

// present treats an explicit null like a missing field, whatever R is
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func (f Frame[R]) event() Event[R] {
	return Event[R]{Kind: f.Kind, Result: f.Result, Error: f.Error}
}
