// Package bolt11 decodes and signs BOLT-11 payment requests with lnd's zpay32
// codec. Decoding checks the signature and recovers the payee key from it.
package bolt11

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

const hashLength = 32

// DefaultExpiry applies when the request carries no expiry field
const DefaultExpiry = time.Hour

var (
	ErrNotInvoice     = errors.New("bolt11: not a lightning payment request")
	ErrMissingHash    = errors.New("bolt11: payment hash missing")
	ErrInvalidAmount  = errors.New("bolt11: invalid amount")
	ErrUnknownNetwork = errors.New("bolt11: unknown network")
)

// networks maps the currency prefix of the human-readable part to the chain
// parameters zpay32 checks it against
var networks = map[string]*chaincfg.Params{
	"bc":   &chaincfg.MainNetParams,
	"tb":   &chaincfg.TestNet3Params,
	"tbs":  &chaincfg.SigNetParams,
	"bcrt": &chaincfg.RegressionNetParams,
	"sb":   &chaincfg.SimNetParams,
}

// Invoice holds the decoded fields of a payment request
type Invoice struct {
	Network         string
	AmountMsat      uint64 // 0 when the request leaves the amount open
	Timestamp       time.Time
	PaymentHash     [hashLength]byte
	Description     string
	DescriptionHash []byte
	Expiry          time.Duration
	MinFinalCLTV    uint64

	// Payee is the compressed public key recovered from the signature
	Payee []byte
}

// Decode parses a bech32 payment request, with or without a "lightning:" prefix
func Decode(s string) (*Invoice, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && strings.EqualFold(s[:10], "lightning:") {
		s = s[10:]
	}

	hrp, _, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, fmt.Errorf("bolt11: %w", err)
	}
	if !strings.HasPrefix(hrp, "ln") {
		return nil, ErrNotInvoice
	}

	network, msat, err := parseHRP(hrp[2:])
	if err != nil {
		return nil, err
	}
	params, ok := networks[network]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}

	decoded, err := zpay32.Decode(s, params)
	if err != nil {
		return nil, fmt.Errorf("bolt11: %w", err)
	}
	if decoded.PaymentHash == nil {
		return nil, ErrMissingHash
	}

	var amount uint64
	if decoded.MilliSat != nil {
		amount = uint64(*decoded.MilliSat)
	}
	if amount != msat {
		return nil, fmt.Errorf("%w: %d msat decoded as %d", ErrInvalidAmount, msat, amount)
	}

	inv := &Invoice{
		Network:      network,
		AmountMsat:   msat,
		Timestamp:    decoded.Timestamp.UTC(),
		PaymentHash:  *decoded.PaymentHash,
		Expiry:       decoded.Expiry(),
		MinFinalCLTV: decoded.MinFinalCLTVExpiry(),
	}
	if decoded.Description != nil {
		inv.Description = *decoded.Description
	}
	if decoded.DescriptionHash != nil {
		inv.DescriptionHash = decoded.DescriptionHash[:]
	}
	if decoded.Destination != nil {
		inv.Payee = decoded.Destination.SerializeCompressed()
	}
	return inv, nil
}

// parseHRP splits the part after "ln" into network and amount in msat
func parseHRP(rest string) (string, uint64, error) {
	i := strings.IndexAny(rest, "0123456789")
	if i < 0 {
		return rest, 0, nil
	}
	network, amount := rest[:i], rest[i:]
	if network == "" {
		return "", 0, ErrNotInvoice
	}

	multiplier := amount[len(amount)-1]
	digits := amount
	if multiplier >= 'a' && multiplier <= 'z' {
		digits = amount[:len(amount)-1]
	} else {
		multiplier = 0
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || n == 0 {
		return "", 0, ErrInvalidAmount
	}

	// One bitcoin is 10^11 millisatoshi
	var unit uint64
	switch multiplier {
	case 0:
		unit = 100_000_000_000
	case 'm':
		unit = 100_000_000
	case 'u':
		unit = 100_000
	case 'n':
		unit = 100
	case 'p':
		if n%10 != 0 {
			return "", 0, ErrInvalidAmount
		}
		return network, n / 10, nil
	default:
		return "", 0, ErrInvalidAmount
	}

	if n > math.MaxUint64/unit {
		return "", 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, amount)
	}
	return network, n * unit, nil
}

// Request carries the fields of a payment request to sign
type Request struct {
	Network       string // currency prefix, e.g. "bc" or "bcrt"
	AmountMsat    uint64 // 0 leaves the amount to the payer
	PaymentHash   [hashLength]byte
	PaymentSecret [32]byte
	Description   string
	Expiry        time.Duration
	MinFinalCLTV  uint64
	Timestamp     time.Time // defaults to now
}

// Encode signs the request with key and returns its bech32 form
func Encode(r Request, key *btcec.PrivateKey) (string, error) {
	params, ok := networks[r.Network]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, r.Network)
	}

	opts := []func(*zpay32.Invoice){
		zpay32.Description(r.Description),
		zpay32.PaymentAddr(r.PaymentSecret),
	}
	if r.AmountMsat > 0 {
		opts = append(opts, zpay32.Amount(lnwire.MilliSatoshi(r.AmountMsat)))
	}
	if r.Expiry > 0 {
		opts = append(opts, zpay32.Expiry(r.Expiry))
	}
	if r.MinFinalCLTV > 0 {
		opts = append(opts, zpay32.CLTVExpiry(r.MinFinalCLTV))
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	inv, err := zpay32.NewInvoice(params, r.PaymentHash, ts, opts...)
	if err != nil {
		return "", fmt.Errorf("bolt11: %w", err)
	}
	return inv.Encode(Signer(key))
}

// Signer signs the single SHA-256 of the request data with key
func Signer(key *btcec.PrivateKey) zpay32.MessageSigner {
	return zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(key, chainhash.HashB(msg), true)
		},
	}
}

// AmountSat returns the amount rounded down to whole satoshis
func (inv *Invoice) AmountSat() uint64 {
	return inv.AmountMsat / 1000
}

// PaymentHashHex returns the payment hash as lowercase hex
func (inv *Invoice) PaymentHashHex() string {
	return hex.EncodeToString(inv.PaymentHash[:])
}

// PaymentHashBase64 returns the payment hash in standard base64, the r_hash
// form of the REST API
func (inv *Invoice) PaymentHashBase64() string {
	return base64.StdEncoding.EncodeToString(inv.PaymentHash[:])
}

// PaymentHashURLSafe returns the payment hash in URL-safe base64, the form
// used in subscription paths
func (inv *Invoice) PaymentHashURLSafe() string {
	return base64.URLEncoding.EncodeToString(inv.PaymentHash[:])
}

// ExpiresAt returns the instant after which the request can no longer be paid
func (inv *Invoice) ExpiresAt() time.Time {
	return inv.Timestamp.Add(inv.Expiry)
}
