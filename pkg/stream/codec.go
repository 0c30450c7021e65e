package stream

import (
	"encoding"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// encode renders a request as the text of one frame. Strings and byte slices
// are sent verbatim, TextMarshalers use their own form, anything else is JSON.
func encode[S any](req S) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch v := any(req).(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case encoding.TextMarshaler:
		data, err = v.MarshalText()
	default:
		data, err = json.Marshal(req)
	}
	if err != nil {
		return nil, &SerializationError{Direction: Outbound, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &SerializationError{Direction: Outbound, Err: fmt.Errorf("payload is not valid UTF-8")}
	}
	return data, nil
}
