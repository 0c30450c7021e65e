package macaroon

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// HeaderName is the header LND reads the macaroon from, on REST calls and on
// WebSocket upgrade requests alike.
const HeaderName = "Grpc-Metadata-macaroon"

// Macaroon is an opaque authentication secret issued by an LND node.
//
// The value is immutable once constructed and safe to share between any number
// of clients and streaming channels. It never prints its contents: String and
// the zerolog marshaler both redact it.
type Macaroon struct {
	raw []byte
}

// New copies b into a new Macaroon
func New(b []byte) Macaroon {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Macaroon{raw: raw}
}

// FromHex parses a hex-encoded macaroon
func FromHex(s string) (Macaroon, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Macaroon{}, fmt.Errorf("invalid hex macaroon: %w", err)
	}
	return Macaroon{raw: raw}, nil
}

// Load reads a binary macaroon file such as admin.macaroon
func Load(path string) (Macaroon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Macaroon{}, fmt.Errorf("failed to read macaroon %s: %w", path, err)
	}
	if len(raw) == 0 {
		return Macaroon{}, fmt.Errorf("macaroon file %s is empty", path)
	}
	return Macaroon{raw: raw}, nil
}

// Hex returns the lowercase hex form used as the header value
func (m Macaroon) Hex() string {
	return hex.EncodeToString(m.raw)
}

// Len returns the size of the secret in bytes
func (m Macaroon) Len() int {
	return len(m.raw)
}

// IsZero reports whether no secret was provided
func (m Macaroon) IsZero() bool {
	return len(m.raw) == 0
}

func (m Macaroon) String() string {
	return "[redacted macaroon]"
}

// MarshalZerologObject logs only the size of the secret
func (m Macaroon) MarshalZerologObject(e *zerolog.Event) {
	e.Int("macaroon_bytes", len(m.raw))
}
