package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashText [2]byte

func (h hashText) MarshalText() ([]byte, error) {
	return []byte("hash:" + string(h[:])), nil
}

type failingText struct{}

func (failingText) MarshalText() ([]byte, error) {
	return nil, errors.New("cannot render")
}

func TestEncodeJSON(t *testing.T) {
	data, err := encode(payRequest{PaymentRequest: "lnbc1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payment_request":"lnbc1"}`, string(data))
}

func TestEncodeVerbatim(t *testing.T) {
	data, err := encode("AQID_w==")
	require.NoError(t, err)
	assert.Equal(t, "AQID_w==", string(data))

	data, err = encode([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	data, err = encode(json.RawMessage(`{"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(data))
}

func TestEncodeTextMarshaler(t *testing.T) {
	data, err := encode(hashText{'a', 'b'})
	require.NoError(t, err)
	assert.Equal(t, "hash:ab", string(data))
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"unsupported json value", func() error {
			_, err := encode(payRequest{Extra: make(chan int)})
			return err
		}},
		{"text marshaler failure", func() error {
			_, err := encode(failingText{})
			return err
		}},
		{"invalid utf-8", func() error {
			_, err := encode([]byte{0xff, 0xfe})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)

			var serr *SerializationError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, Outbound, serr.Direction)
		})
	}
}
