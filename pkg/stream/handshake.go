package stream

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

// Fixed upgrade negotiation values (RFC 6455)
const (
	websocketVersion = "13"
	nonceLength      = 16
	redacted         = "[redacted]"
)

// Endpoint describes where a channel connects to
type Endpoint struct {
	// Host is host[:port] of the node, e.g. "lnd.example.com:8080"
	Host string

	// Path is the request path, optionally carrying the subscription subject
	// and a query string, e.g. "/v2/invoices/subscribe/<hash>" or
	// "/v2/router/send?method=POST"
	Path string

	// Secure selects wss/https over ws/http
	Secure bool
}

// URL returns the WebSocket URL of the endpoint
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return scheme + "://" + e.Host + e.path()
}

// HTTPURL returns the plain request URL of the endpoint
func (e Endpoint) HTTPURL() string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return scheme + "://" + e.Host + e.path()
}

func (e Endpoint) path() string {
	if e.Path == "" || strings.HasPrefix(e.Path, "/") {
		return e.Path
	}
	return "/" + e.Path
}

// Handshake is the upgrade request a channel opens its connection with.
//
// The transport's automatic request lacks the macaroon header, so the full
// request is described here and handed to the dialer. Header values are
// validated up front: nothing reaches the network with an unsendable header.
type Handshake struct {
	Method string
	URL    string
	Header http.Header
}

// BuildHandshake builds the upgrade request for ep authenticated with mac
func BuildHandshake(ep Endpoint, mac macaroon.Macaroon) (*Handshake, error) {
	if ep.Host == "" {
		return nil, &HandshakeError{Reason: "missing host"}
	}
	if mac.IsZero() {
		return nil, &HandshakeError{Header: macaroon.HeaderName, Reason: "empty credential"}
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, &HandshakeError{Header: "Sec-WebSocket-Key", Reason: err.Error()}
	}

	header := http.Header{}
	header.Set(macaroon.HeaderName, mac.Hex())
	header.Set("Sec-WebSocket-Key", nonce)
	header.Set("Host", ep.Host)
	header.Set("Connection", "Upgrade")
	header.Set("Upgrade", "websocket")
	header.Set("Sec-WebSocket-Version", websocketVersion)

	for name, values := range header {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, &HandshakeError{Header: name, Reason: "invalid header name"}
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, &HandshakeError{Header: name, Reason: "value contains bytes not allowed in a header"}
			}
		}
	}

	rawURL := ep.URL()
	if _, err := url.Parse(rawURL); err != nil {
		return nil, &HandshakeError{Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	return &Handshake{
		Method: http.MethodGet,
		URL:    rawURL,
		Header: header,
	}, nil
}

// DialHeader returns the headers the dialer does not generate itself.
//
// gorilla/websocket derives its own Sec-WebSocket-Key and writes the
// Connection, Upgrade and version headers; it refuses duplicates of those.
// Host is honoured by the dialer as the request host.
func (h *Handshake) DialHeader() http.Header {
	out := http.Header{}
	for name, values := range h.Header {
		switch name {
		case "Connection", "Upgrade", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions":
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

func (h *Handshake) String() string {
	names := make([]string, 0, len(h.Header))
	for name := range h.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", h.Method, h.URL)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s: %s", name, h.headerValue(name))
	}
	return b.String()
}

// MarshalZerologObject logs the request with the credential redacted
func (h *Handshake) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", h.Method).Str("url", h.URL)
	dict := zerolog.Dict()
	for name := range h.Header {
		dict.Str(name, h.headerValue(name))
	}
	e.Dict("headers", dict)
}

func (h *Handshake) headerValue(name string) string {
	if http.CanonicalHeaderKey(name) == http.CanonicalHeaderKey(macaroon.HeaderName) {
		return redacted
	}
	return strings.Join(h.Header.Values(name), ", ")
}

func newNonce() (string, error) {
	b := make([]byte, nonceLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
