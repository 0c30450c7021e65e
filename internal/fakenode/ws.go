package fakenode

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/illuminodes/bright-lightning/pkg/bolt11"
)

const writeWait = 5 * time.Second

// Payment failure reasons reported by the router
const (
	FailureNoRoute                 = "FAILURE_REASON_NO_ROUTE"
	FailureIncorrectPaymentDetails = "FAILURE_REASON_INCORRECT_PAYMENT_DETAILS"
)

type paymentJSON struct {
	PaymentHash     string `json:"payment_hash"`
	PaymentPreimage string `json:"payment_preimage,omitempty"`
	Status          string `json:"status"`
	FailureReason   string `json:"failure_reason,omitempty"`
	ValueSat        string `json:"value_sat"`
	FeeSat          string `json:"fee_sat"`
}

// session is one upgraded connection. Writes are serialized; a background
// reader detects disconnects and, for the router, collects request frames.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	gone   chan struct{}
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (n *Node) upgrade(w http.ResponseWriter, r *http.Request, collect bool) (*session, bool) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Fake node upgrade failed")
		return nil, false
	}

	s := &session{
		conn: conn,
		gone: make(chan struct{}),
		done: make(chan struct{}),
	}
	if collect {
		s.frames = make(chan []byte, 16)
	}

	go s.readLoop()
	if n.opts.Keepalive > 0 {
		go s.keepalive(n.opts.Keepalive)
	}
	return s, true
}

func (s *session) readLoop() {
	defer close(s.gone)
	if s.frames != nil {
		defer close(s.frames)
	}

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage || s.frames == nil {
			continue
		}
		select {
		case s.frames <- data:
		case <-s.done:
			return
		}
	}
}

func (s *session) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-s.gone:
			return
		case <-s.done:
			return
		}
	}
}

func (s *session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *session) sendResult(v any) error {
	return s.send(map[string]any{"result": v})
}

func (s *session) sendError(code int, message string) error {
	return s.send(map[string]any{"error": map[string]any{"code": code, "message": message, "details": []any{}}})
}

// finish sends a normal close frame
func (s *session) finish() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// handleSubscribe streams the state of one invoice, starting with the
// current state, and closes once the invoice is settled or canceled
func (n *Node) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	hash, valid := decodeHash(mux.Vars(r)["rhash"])

	s, ok := n.upgrade(w, r, false)
	if !ok {
		return
	}
	defer s.close()

	if !valid {
		s.sendError(3, "invalid payment hash")
		s.finish()
		return
	}

	n.mu.Lock()
	inv, exists := n.invoices[hash]
	if !exists {
		n.mu.Unlock()
		s.sendError(5, "unable to locate invoice")
		s.finish()
		return
	}

	for {
		state := inv.wire()
		final := inv.final()
		changed := inv.changed
		n.mu.Unlock()

		if err := s.sendResult(state); err != nil {
			return
		}
		if final {
			s.finish()
			return
		}

		select {
		case <-changed:
		case <-s.gone:
			return
		}
		n.mu.Lock()
	}
}

// handleRouterSend serves the payment channel. Requests are handled
// concurrently; every update carries the payment hash it belongs to.
func (n *Node) handleRouterSend(w http.ResponseWriter, r *http.Request) {
	s, ok := n.upgrade(w, r, true)
	if !ok {
		return
	}
	defer s.close()

	var wg sync.WaitGroup
	defer wg.Wait()

	for data := range s.frames {
		n.mu.Lock()
		n.payments = append(n.payments, json.RawMessage(data))
		n.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			n.pay(s, data)
		}()
	}
}

func (n *Node) pay(s *session, data []byte) {
	var req struct {
		PaymentRequest string `json:"payment_request"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.PaymentRequest == "" {
		s.sendError(3, "payment_request is required")
		return
	}

	decoded, err := bolt11.Decode(req.PaymentRequest)
	if err != nil {
		s.sendError(3, "invalid payment request: "+err.Error())
		return
	}
	update := paymentJSON{
		PaymentHash: decoded.PaymentHashHex(),
		ValueSat:    strconv.FormatUint(decoded.AmountSat(), 10),
		FeeSat:      "0",
	}

	n.mu.Lock()
	inv, exists := n.invoices[decoded.PaymentHash]
	switch {
	case !exists:
		n.mu.Unlock()
		update.Status = "FAILED"
		update.FailureReason = FailureNoRoute
		s.sendResult(update)
		return
	case inv.state == StateCanceled:
		n.mu.Unlock()
		update.Status = "FAILED"
		update.FailureReason = FailureIncorrectPaymentDetails
		s.sendResult(update)
		return
	case inv.state != StateOpen:
		n.mu.Unlock()
		s.sendError(6, "invoice is already paid")
		return
	}

	if inv.hold {
		inv.setState(StateAccepted)
	} else {
		inv.setState(StateSettled)
	}
	n.mu.Unlock()

	update.Status = "IN_FLIGHT"
	if err := s.sendResult(update); err != nil {
		return
	}

	n.mu.Lock()
	for !inv.final() {
		changed := inv.changed
		n.mu.Unlock()
		select {
		case <-changed:
		case <-s.gone:
			return
		}
		n.mu.Lock()
	}
	if inv.state == StateSettled {
		update.Status = "SUCCEEDED"
		update.PaymentPreimage = hex.EncodeToString(inv.preimage)
	} else {
		update.Status = "FAILED"
		update.FailureReason = FailureIncorrectPaymentDetails
	}
	n.mu.Unlock()

	s.sendResult(update)
}
