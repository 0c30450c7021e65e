// Package fakenode runs an in-process LND stand-in for tests: the REST
// routes the client uses, the invoice subscription and router WebSocket
// routes, and a Lightning Address (LNURL-pay) endpoint, all behind a
// self-signed TLS listener and macaroon check.
package fakenode

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
)

// DefaultMacaroon is the credential a node accepts unless Options names another
var DefaultMacaroon = []byte{0x02, 0x01, 0x03, 0x6c, 0x6e, 0x64, 0x02, 0xf8}

// Options configure a fake node
type Options struct {
	Macaroon []byte

	// Keepalive is the ping interval on WebSocket routes (0 disables pings)
	Keepalive time.Duration

	// MinSendableMsat and MaxSendableMsat bound Lightning Address payments
	MinSendableMsat uint64
	MaxSendableMsat uint64
}

// Request is one authenticated call the node received
type Request struct {
	Method   string
	Path     string
	Macaroon string
}

type failure struct {
	status  int
	code    int
	message string
}

// Node is a running fake LND node
type Node struct {
	opts     Options
	server   *httptest.Server
	upgrader websocket.Upgrader
	macHex   string

	mu        sync.Mutex
	invoices  map[[32]byte]*invoice
	nextIndex uint64
	requests  []Request
	payments  []json.RawMessage
	failures  map[string]failure
	users     map[string]bool
}

// New starts a fake node
func New(opts Options) *Node {
	if len(opts.Macaroon) == 0 {
		opts.Macaroon = DefaultMacaroon
	}
	if opts.MinSendableMsat == 0 {
		opts.MinSendableMsat = 1000
	}
	if opts.MaxSendableMsat == 0 {
		opts.MaxSendableMsat = 100_000_000_000
	}

	n := &Node{
		opts:     opts,
		macHex:   macaroon.New(opts.Macaroon).Hex(),
		invoices: make(map[[32]byte]*invoice),
		failures: make(map[string]failure),
	}

	r := mux.NewRouter()

	// LNURL endpoints are public
	r.HandleFunc("/.well-known/lnurlp/{user}", n.handleLNURLParams).Methods("GET")
	r.HandleFunc("/lnurlp/{user}/callback", n.handleLNURLCallback).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(n.authenticate)
	api.HandleFunc("/v1/getinfo", n.handleGetInfo).Methods("GET")
	api.HandleFunc("/v1/balance/channels", n.handleChannelBalance).Methods("GET")
	api.HandleFunc("/v1/newaddress", n.handleNewAddress).Methods("GET")
	api.HandleFunc("/v2/wallet/addresses", n.handleListAddresses).Methods("GET")
	api.HandleFunc("/v1/invoices", n.handleAddInvoice).Methods("POST")
	api.HandleFunc("/v2/invoices/hodl", n.handleAddHodlInvoice).Methods("POST")
	api.HandleFunc("/v2/invoices/settle", n.handleSettle).Methods("POST")
	api.HandleFunc("/v2/invoices/cancel", n.handleCancel).Methods("POST")
	api.HandleFunc("/v2/invoices/subscribe/{rhash}", n.handleSubscribe).Methods("GET")
	api.HandleFunc("/v2/router/send", n.handleRouterSend).Methods("GET")

	n.server = httptest.NewTLSServer(r)
	return n
}

// Close shuts the node down
func (n *Node) Close() {
	n.server.Close()
}

// Host returns host:port of the node
func (n *Node) Host() string {
	return strings.TrimPrefix(n.server.URL, "https://")
}

// URL returns the https base URL of the node
func (n *Node) URL() string {
	return n.server.URL
}

// Macaroon returns the credential the node accepts
func (n *Node) Macaroon() macaroon.Macaroon {
	return macaroon.New(n.opts.Macaroon)
}

// Client returns an HTTP client trusting the node's certificate
func (n *Node) Client() *http.Client {
	return n.server.Client()
}

// Requests returns the authenticated calls received so far
func (n *Node) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Request(nil), n.requests...)
}

// Payments returns the raw payment requests received on the router channel
func (n *Node) Payments() []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]json.RawMessage(nil), n.payments...)
}

// FailWith makes every later call to path answer with an LND error body
func (n *Node) FailWith(path string, status, code int, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[path] = failure{status: status, code: code, message: message}
}

// CreateInvoice adds an invoice as if another client had created it and
// returns its preimage and payment request
func (n *Node) CreateInvoice(valueSat uint64, memo string) (preimage []byte, paymentRequest string) {
	preimage, hash := newPreimage()
	inv, err := n.addInvoice(hash, preimage, valueSat, memo)
	if err != nil {
		panic(err)
	}
	return preimage, inv.paymentRequest
}

// PayInvoice simulates an external payer: a regular invoice settles, a hold
// invoice becomes ACCEPTED. It reports false for unknown or non-open invoices.
func (n *Node) PayInvoice(hash [32]byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.invoices[hash]
	if !ok || inv.state != StateOpen {
		return false
	}
	if inv.hold {
		inv.setState(StateAccepted)
	} else {
		inv.setState(StateSettled)
	}
	return true
}

// InvoiceState returns the state of the invoice with hash, or "" if unknown
func (n *Node) InvoiceState(hash [32]byte) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if inv, ok := n.invoices[hash]; ok {
		return inv.state
	}
	return ""
}

func (n *Node) addInvoice(hash [32]byte, preimage []byte, valueSat uint64, memo string) (*invoice, error) {
	var secret [32]byte
	copy(secret[:], randomBytes(32))
	pr, err := encodeRequest(valueSat, hash, secret, memo)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.invoices[hash]; exists {
		return nil, errInvoiceExists
	}

	n.nextIndex++
	inv := &invoice{
		hash:           hash,
		preimage:       preimage,
		valueSat:       valueSat,
		memo:           memo,
		paymentRequest: pr,
		addIndex:       n.nextIndex,
		paymentAddr:    secret,
		hold:           preimage == nil,
		state:          StateOpen,
		changed:        make(chan struct{}),
	}
	n.invoices[hash] = inv
	return inv, nil
}

var errInvoiceExists = fmt.Errorf("invoice with that payment hash already exists")

func (n *Node) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mac := r.Header.Get(macaroon.HeaderName)

		n.mu.Lock()
		n.requests = append(n.requests, Request{Method: r.Method, Path: r.URL.Path, Macaroon: mac})
		fail, failing := n.failures[r.URL.Path]
		n.mu.Unlock()

		if mac != n.macHex {
			writeError(w, http.StatusUnauthorized, 2, "verification failed: signature mismatch after caveat verification")
			return
		}
		if failing {
			writeError(w, fail.status, fail.code, fail.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode fake node response")
	}
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]any{"code": code, "message": message, "details": []any{}})
}

func (n *Node) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"identity_pubkey": IdentityPubkey(),
		"alias":           "fakenode",
		"version":         "0.18.0-beta",
		"block_height":    840000,
		"synced_to_chain": true,
	})
}

func (n *Node) handleChannelBalance(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	var local uint64
	for _, inv := range n.invoices {
		if inv.state == StateSettled {
			local += inv.valueSat
		}
	}
	n.mu.Unlock()

	amount := func(sat uint64) map[string]string {
		return map[string]string{"sat": strconv.FormatUint(sat, 10), "msat": strconv.FormatUint(sat*1000, 10)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"local_balance":               amount(local),
		"remote_balance":              amount(1_000_000),
		"pending_open_local_balance":  amount(0),
		"pending_open_remote_balance": amount(0),
	})
}

func (n *Node) handleNewAddress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"address": "bcrt1q" + strings.ReplaceAll(uuid.NewString(), "-", "")[:32],
	})
}

func (n *Node) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"account_with_addresses": []map[string]any{
			{
				"name":            "default",
				"address_type":    "WITNESS_PUBKEY_HASH",
				"derivation_path": "m/84'/1'/0'",
				"addresses": []map[string]any{
					{"address": "bcrt1qdefault0", "is_internal": false, "balance": "50000", "derivation_path": "m/84'/1'/0'/0/0", "public_key": "02aa"},
					{"address": "bcrt1qchange0", "is_internal": true, "balance": "0", "derivation_path": "m/84'/1'/0'/1/0", "public_key": "02bb"},
				},
			},
			{
				"name":            "imported",
				"address_type":    "TAPROOT_PUBKEY",
				"derivation_path": "m/86'/1'/0'",
				"addresses":       []map[string]any{},
			},
		},
	})
}

func (n *Node) handleAddInvoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
		Memo  string `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid request body")
		return
	}
	value, err := strconv.ParseUint(body.Value, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid value")
		return
	}

	preimage, hash := newPreimage()
	inv, err := n.addInvoice(hash, preimage, value, body.Memo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, 2, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"r_hash":          base64.StdEncoding.EncodeToString(inv.hash[:]),
		"payment_request": inv.paymentRequest,
		"add_index":       strconv.FormatUint(inv.addIndex, 10),
		"payment_addr":    base64.StdEncoding.EncodeToString(inv.paymentAddr[:]),
	})
}

func (n *Node) handleAddHodlInvoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
		Hash  string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid request body")
		return
	}
	value, err := strconv.ParseUint(body.Value, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid value")
		return
	}
	hash, ok := decodeHash(body.Hash)
	if !ok {
		writeError(w, http.StatusBadRequest, 3, "invalid hash")
		return
	}

	inv, err := n.addInvoice(hash, nil, value, "")
	if err != nil {
		writeError(w, http.StatusBadRequest, 2, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"payment_request": inv.paymentRequest,
		"add_index":       strconv.FormatUint(inv.addIndex, 10),
		"payment_addr":    base64.StdEncoding.EncodeToString(inv.paymentAddr[:]),
	})
}

func (n *Node) handleSettle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Preimage string `json:"preimage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid request body")
		return
	}
	preimage, err := base64.URLEncoding.DecodeString(body.Preimage)
	if err != nil {
		preimage, err = base64.StdEncoding.DecodeString(body.Preimage)
	}
	if err != nil || len(preimage) != 32 {
		writeError(w, http.StatusBadRequest, 3, "invalid preimage")
		return
	}
	hash := sha256.Sum256(preimage)

	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.invoices[hash]
	if !ok {
		writeError(w, http.StatusNotFound, 5, "unable to locate invoice")
		return
	}
	if inv.state != StateAccepted {
		writeError(w, http.StatusBadRequest, 9, "invoice still open")
		return
	}
	inv.preimage = preimage
	inv.setState(StateSettled)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (n *Node) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentHash string `json:"payment_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 3, "invalid request body")
		return
	}
	hash, ok := decodeHash(body.PaymentHash)
	if !ok {
		writeError(w, http.StatusBadRequest, 3, "invalid payment hash")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	inv, exists := n.invoices[hash]
	if !exists {
		writeError(w, http.StatusNotFound, 5, "unable to locate invoice")
		return
	}
	if inv.state == StateSettled {
		writeError(w, http.StatusBadRequest, 9, "invoice already settled")
		return
	}
	if inv.state != StateCanceled {
		inv.setState(StateCanceled)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
