// Package lnurl resolves Lightning Addresses (user@domain) into BOLT-11
// payment requests with the two LNURL-pay lookups: the well-known pay
// parameters, then the callback carrying the amount.
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/illuminodes/bright-lightning/pkg/bolt11"
)

const maxBody = 64 << 10

var (
	ErrInvalidAddress = errors.New("lnurl: invalid lightning address")
	ErrAmountTooLow   = errors.New("lnurl: amount below the minimum sendable")
	ErrAmountTooHigh  = errors.New("lnurl: amount above the maximum sendable")
	ErrAmountMismatch = errors.New("lnurl: invoice amount does not match the request")
	ErrNotPayRequest  = errors.New("lnurl: endpoint is not a payRequest")
)

// ServiceError is an {"status":"ERROR","reason":...} answer
type ServiceError struct {
	Reason string
}

func (e *ServiceError) Error() string {
	return "lnurl: service error: " + e.Reason
}

// Address is a validated Lightning Address
type Address struct {
	User   string
	Domain string
}

// ParseAddress validates s as user@domain. The user part is lowercased.
func ParseAddress(s string) (Address, error) {
	user, domain, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || user == "" || domain == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	user = strings.ToLower(user)
	for _, r := range user {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == '+') {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
	}
	if strings.ContainsAny(domain, "/?#@ \t\r\n") {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	return Address{User: user, Domain: strings.ToLower(domain)}, nil
}

// String returns user@domain
func (a Address) String() string {
	return a.User + "@" + a.Domain
}

// WellKnownURL returns the pay parameters URL of the address
func (a Address) WellKnownURL() string {
	return "https://" + a.Domain + "/.well-known/lnurlp/" + url.PathEscape(a.User)
}

// PayParams are the pay parameters the address publishes. Amounts are in
// millisatoshis.
type PayParams struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable uint64 `json:"minSendable"`
	MaxSendable uint64 `json:"maxSendable"`
	Metadata    string `json:"metadata"`
}

// PaymentRequest is the callback answer
type PaymentRequest struct {
	PR string `json:"pr"`
}

// Decode parses the BOLT-11 request
func (p *PaymentRequest) Decode() (*bolt11.Invoice, error) {
	return bolt11.Decode(p.PR)
}

// RHash returns the payment hash in standard base64
func (p *PaymentRequest) RHash() (string, error) {
	inv, err := p.Decode()
	if err != nil {
		return "", err
	}
	return inv.PaymentHashBase64(), nil
}

// RHashURLSafe returns the payment hash in URL-safe base64, the form invoice
// subscriptions take
func (p *PaymentRequest) RHashURLSafe() (string, error) {
	inv, err := p.Decode()
	if err != nil {
		return "", err
	}
	return inv.PaymentHashURLSafe(), nil
}

// Resolve fetches the pay parameters of the address
func (a Address) Resolve(ctx context.Context, client *http.Client) (*PayParams, error) {
	var params PayParams
	if err := get(ctx, client, "lnurl params", a.WellKnownURL(), &params); err != nil {
		return nil, err
	}
	if params.Tag != "" && params.Tag != "payRequest" {
		return nil, fmt.Errorf("%w: tag %q", ErrNotPayRequest, params.Tag)
	}
	if params.Callback == "" {
		return nil, fmt.Errorf("lnurl: %s published no callback", a)
	}

	log.Debug().
		Str("address", a.String()).
		Uint64("min_sendable", params.MinSendable).
		Uint64("max_sendable", params.MaxSendable).
		Msg("Resolved lightning address")
	return &params, nil
}

// RequestInvoice resolves the address and asks its callback for an invoice
// of msat millisatoshis
func (a Address) RequestInvoice(ctx context.Context, client *http.Client, msat uint64) (*PaymentRequest, error) {
	params, err := a.Resolve(ctx, client)
	if err != nil {
		return nil, err
	}
	return params.RequestInvoice(ctx, client, msat)
}

// RequestInvoice asks the callback for an invoice of msat millisatoshis
func (p *PayParams) RequestInvoice(ctx context.Context, client *http.Client, msat uint64) (*PaymentRequest, error) {
	if msat < p.MinSendable {
		return nil, fmt.Errorf("%w: %d < %d msat", ErrAmountTooLow, msat, p.MinSendable)
	}
	if p.MaxSendable > 0 && msat > p.MaxSendable {
		return nil, fmt.Errorf("%w: %d > %d msat", ErrAmountTooHigh, msat, p.MaxSendable)
	}

	callback, err := url.Parse(p.Callback)
	if err != nil {
		return nil, fmt.Errorf("lnurl: invalid callback: %w", err)
	}
	query := callback.Query()
	query.Set("amount", strconv.FormatUint(msat, 10))
	callback.RawQuery = query.Encode()

	var pr PaymentRequest
	if err := get(ctx, client, "lnurl callback", callback.String(), &pr); err != nil {
		return nil, err
	}
	if pr.PR == "" {
		return nil, fmt.Errorf("lnurl: callback returned no payment request")
	}

	inv, err := pr.Decode()
	if err != nil {
		return nil, fmt.Errorf("lnurl: callback returned an invalid payment request: %w", err)
	}
	if msat%1000 == 0 && inv.AmountMsat != msat {
		return nil, fmt.Errorf("%w: got %d msat", ErrAmountMismatch, inv.AmountMsat)
	}
	return &pr, nil
}

func get(ctx context.Context, client *http.Client, operation, target string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var envelope struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(data, &envelope) == nil && strings.EqualFold(envelope.Status, "ERROR") {
		return &ServiceError{Reason: envelope.Reason}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: HTTP %d", operation, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
