package fakenode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/illuminodes/bright-lightning/pkg/bolt11"
)

// Invoice states, as the node reports them
const (
	StateOpen     = "OPEN"
	StateAccepted = "ACCEPTED"
	StateCanceled = "CANCELED"
	StateSettled  = "SETTLED"
)

type invoice struct {
	hash           [32]byte
	preimage       []byte // nil for hold invoices until settled
	valueSat       uint64
	memo           string
	paymentRequest string
	addIndex       uint64
	paymentAddr    [32]byte
	hold           bool
	state          string

	// changed is closed and replaced on every state transition
	changed chan struct{}
}

func (inv *invoice) setState(state string) {
	inv.state = state
	close(inv.changed)
	inv.changed = make(chan struct{})
}

func (inv *invoice) final() bool {
	return inv.state == StateSettled || inv.state == StateCanceled
}

func (inv *invoice) wire() invoiceJSON {
	return invoiceJSON{
		Settled:        inv.state == StateSettled,
		State:          inv.state,
		RHash:          base64.StdEncoding.EncodeToString(inv.hash[:]),
		PaymentRequest: inv.paymentRequest,
		AmtPaidSat:     fmt.Sprint(inv.paidSat()),
	}
}

func (inv *invoice) paidSat() uint64 {
	if inv.state == StateSettled || inv.state == StateAccepted {
		return inv.valueSat
	}
	return 0
}

type invoiceJSON struct {
	Settled        bool   `json:"settled"`
	State          string `json:"state"`
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AmtPaidSat     string `json:"amt_paid_sat"`
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func newPreimage() ([]byte, [32]byte) {
	preimage := randomBytes(32)
	return preimage, sha256.Sum256(preimage)
}

// decodeHash accepts a payment hash in standard or URL-safe base64, or hex
func decodeHash(s string) ([32]byte, bool) {
	var out [32]byte
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == 32 {
			copy(out[:], b)
			return out, true
		}
	}
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		copy(out[:], b)
		return out, true
	}
	return out, false
}

// nodeKey signs every payment request the fake node issues
var nodeKey = func() *btcec.PrivateKey {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		panic(err)
	}
	return key
}()

// IdentityPubkey returns the hex public key that signs the node's requests
func IdentityPubkey() string {
	return hex.EncodeToString(nodeKey.PubKey().SerializeCompressed())
}

// EncodePaymentRequest builds a signed regtest BOLT-11 request carrying the
// amount, payment hash and description
func EncodePaymentRequest(amountSat uint64, hash [32]byte, memo string) (string, error) {
	var secret [32]byte
	copy(secret[:], randomBytes(32))
	return encodeRequest(amountSat, hash, secret, memo)
}

func encodeRequest(amountSat uint64, hash, secret [32]byte, memo string) (string, error) {
	return bolt11.Encode(bolt11.Request{
		Network:       "bcrt",
		AmountMsat:    amountSat * 1000,
		PaymentHash:   hash,
		PaymentSecret: secret,
		Description:   memo,
	}, nodeKey)
}
