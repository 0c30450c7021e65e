package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

var testMacaroon = macaroon.New([]byte{0x02, 0x01, 0x03, 0x6c, 0x6e, 0x64})

// invoiceState mirrors the subset of an invoice update the tests decode
type invoiceState struct {
	State   string `json:"state"`
	Settled bool   `json:"settled"`
}

// payRequest is the outbound request type of the test channels
type payRequest struct {
	PaymentRequest string `json:"payment_request"`
	Extra          any    `json:"extra,omitempty"`
}

// mockPeer is an in-process node speaking the WebSocket side of the protocol
type mockPeer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	script   func(conn *websocket.Conn)
	headers  chan http.Header
}

// newMockPeer starts a plain-text peer running script on each connection
func newMockPeer(t *testing.T, script func(conn *websocket.Conn)) *mockPeer {
	p := &mockPeer{script: script, headers: make(chan http.Header, 4)}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

// newMockTLSPeer starts a peer behind a self-signed certificate
func newMockTLSPeer(t *testing.T, script func(conn *websocket.Conn)) *mockPeer {
	p := &mockPeer{script: script, headers: make(chan http.Header, 4)}
	p.server = httptest.NewTLSServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *mockPeer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(macaroon.HeaderName) != testMacaroon.Hex() {
		http.Error(w, "invalid macaroon", http.StatusUnauthorized)
		return
	}

	select {
	case p.headers <- r.Header.Clone():
	default:
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	p.script(conn)
}

func (p *mockPeer) endpoint(path string) Endpoint {
	host := strings.TrimPrefix(strings.TrimPrefix(p.server.URL, "http://"), "https://")
	return Endpoint{
		Host:   host,
		Path:   path,
		Secure: strings.HasPrefix(p.server.URL, "https://"),
	}
}

// drain reads until the client goes away
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func sendText(conn *websocket.Conn, text string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func sendPing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, []byte("ka"), time.Now().Add(time.Second))
}

// realization dials one of the two channel implementations
type realization func(ctx context.Context, ep Endpoint, opts Options) (Stream[payRequest, invoiceState], error)

var realizations = map[string]realization{
	"actor": func(ctx context.Context, ep Endpoint, opts Options) (Stream[payRequest, invoiceState], error) {
		return Dial[payRequest, invoiceState](ctx, ep, testMacaroon, opts)
	},
	"split": func(ctx context.Context, ep Endpoint, opts Options) (Stream[payRequest, invoiceState], error) {
		return DialSplit[payRequest, invoiceState](ctx, ep, testMacaroon, opts)
	},
}

func forEachRealization(t *testing.T, fn func(t *testing.T, dial realization)) {
	for name, dial := range realizations {
		t.Run(name, func(t *testing.T) {
			fn(t, dial)
		})
	}
}

func mustDial(t *testing.T, dial realization, ep Endpoint, opts Options) Stream[payRequest, invoiceState] {
	t.Helper()
	ch, err := dial(context.Background(), ep, opts)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
