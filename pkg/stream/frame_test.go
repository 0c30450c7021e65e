package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponseRoundTrip(t *testing.T) {
	states := []invoiceState{
		{State: "OPEN"},
		{State: "ACCEPTED"},
		{State: "SETTLED", Settled: true},
		{State: ""},
	}

	var classifier Classifier[invoiceState]
	for _, want := range states {
		raw, err := json.Marshal(ResponseEnvelope[invoiceState]{Result: want})
		require.NoError(t, err)

		frame := classifier.Classify(raw)
		assert.Equal(t, KindResponse, frame.Kind, "frame %s", raw)
		assert.Equal(t, want, frame.Result)
		assert.Nil(t, frame.Error)
	}
}

func TestClassifyResponseScalarTypes(t *testing.T) {
	strFrame := Classifier[string]{}.Classify([]byte(`{"result":"hello"}`))
	assert.Equal(t, KindResponse, strFrame.Kind)
	assert.Equal(t, "hello", strFrame.Result)

	intFrame := Classifier[int]{}.Classify([]byte(`{"result":42}`))
	assert.Equal(t, KindResponse, intFrame.Kind)
	assert.Equal(t, 42, intFrame.Result)
}

func TestClassifyStateRecord(t *testing.T) {
	frame := Classifier[invoiceState]{}.Classify([]byte(`{"result":{"state":"OPEN"}}`))
	require.Equal(t, KindResponse, frame.Kind)
	assert.Equal(t, "OPEN", frame.Result.State)
}

func TestClassifyErrorEnvelope(t *testing.T) {
	tests := []struct {
		code    int
		message string
	}{
		{5, "not found"},
		{2, "invoice already settled"},
		{0, ""},
		{-1, "negative"},
		{14, "unicode ✓ message"},
	}

	var classifier Classifier[invoiceState]
	for _, tt := range tests {
		raw, err := json.Marshal(ErrorEnvelope{Error: ApplicationError{Code: tt.code, Message: tt.message}})
		require.NoError(t, err)

		frame := classifier.Classify(raw)
		require.Equal(t, KindError, frame.Kind, "frame %s", raw)
		require.NotNil(t, frame.Error)
		assert.Equal(t, tt.code, frame.Error.Code)
		assert.Equal(t, tt.message, frame.Error.Message)
	}
}

func TestClassifyUnrecognized(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello node"},
		{"array", `[1,2,3]`},
		{"empty object", `{}`},
		{"null result", `{"result":null}`},
		{"result of wrong shape", `{"result":"OPEN"}`},
		{"error missing message", `{"error":{"code":1}}`},
		{"error missing code", `{"error":{"message":"boom"}}`},
		{"error of wrong shape", `{"error":"boom"}`},
		{"unrelated object", `{"status":"ok"}`},
		{"truncated", `{"result":{"state":"OP`},
	}

	var classifier Classifier[invoiceState]
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := classifier.Classify([]byte(tt.input))
			assert.Equal(t, KindUnrecognized, frame.Kind)
			assert.Equal(t, tt.input, string(frame.Raw))
		})
	}
}

func TestClassifyNullResultEvenForPointerType(t *testing.T) {
	frame := Classifier[*invoiceState]{}.Classify([]byte(`{"result":null}`))
	assert.Equal(t, KindUnrecognized, frame.Kind)
	assert.Nil(t, frame.Result)
}

func TestClassifyPrefersResult(t *testing.T) {
	frame := Classifier[invoiceState]{}.Classify([]byte(`{"result":{"state":"OPEN"},"error":{"code":1,"message":"x"}}`))
	assert.Equal(t, KindResponse, frame.Kind)
}

func TestClassifyFallsBackToError(t *testing.T) {
	// A result that does not decode as the channel type falls through to the
	// error envelope
	frame := Classifier[invoiceState]{}.Classify([]byte(`{"result":7,"error":{"code":3,"message":"bad"}}`))
	require.Equal(t, KindError, frame.Kind)
	assert.Equal(t, 3, frame.Error.Code)
}

func TestKeepaliveFrame(t *testing.T) {
	frame := Classifier[invoiceState]{}.Keepalive()
	assert.Equal(t, KindKeepalive, frame.Kind)
	assert.Nil(t, frame.Raw)
}

func TestFrameKindString(t *testing.T) {
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "keepalive", KindKeepalive.String())
	assert.Equal(t, "unrecognized", KindUnrecognized.String())
}
