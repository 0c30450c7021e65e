package lnd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/illuminodes/bright-lightning/pkg/stream"
)

const routeInvoiceSubscription = "invoice_subscription"

type addInvoiceRequest struct {
	Value string `json:"value"`
	Memo  string `json:"memo,omitempty"`
}

type addHodlInvoiceRequest struct {
	Value string `json:"value"`
	Hash  string `json:"hash"`
}

// AddInvoice creates an invoice for amountSat satoshis
func (c *Client) AddInvoice(ctx context.Context, amountSat uint64, memo string) (*Invoice, error) {
	body := addInvoiceRequest{Value: strconv.FormatUint(amountSat, 10), Memo: memo}

	var inv Invoice
	if err := c.do(ctx, "add invoice", http.MethodPost, "/v1/invoices", body, &inv); err != nil {
		return nil, err
	}

	c.log.Info().
		Uint64("amount_sat", amountSat).
		Uint64("add_index", inv.AddIndex).
		Msg("Invoice created")
	return &inv, nil
}

// AddHodlInvoice creates a hold invoice locked to paymentHash (standard
// base64). The node accepts the payment but only settles it once the
// preimage is released with SettleInvoice.
func (c *Client) AddHodlInvoice(ctx context.Context, paymentHash string, amountSat uint64) (*HodlInvoice, error) {
	body := addHodlInvoiceRequest{Value: strconv.FormatUint(amountSat, 10), Hash: paymentHash}

	var inv HodlInvoice
	if err := c.do(ctx, "add hodl invoice", http.MethodPost, "/v2/invoices/hodl", body, &inv); err != nil {
		return nil, err
	}

	c.log.Info().
		Uint64("amount_sat", amountSat).
		Uint64("add_index", inv.AddIndex).
		Msg("Hold invoice created")
	return &inv, nil
}

// SettleInvoice releases the preimage of an accepted hold invoice
func (c *Client) SettleInvoice(ctx context.Context, preimageHex string) error {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil || len(preimage) != 32 {
		return ErrInvalidPreimage
	}

	body := map[string]string{"preimage": base64.URLEncoding.EncodeToString(preimage)}
	if err := c.do(ctx, "settle invoice", http.MethodPost, "/v2/invoices/settle", body, nil); err != nil {
		return err
	}

	c.log.Info().Msg("Hold invoice settled")
	return nil
}

// CancelInvoice cancels an open or accepted invoice
func (c *Client) CancelInvoice(ctx context.Context, paymentHash string) error {
	body := map[string]string{"payment_hash": paymentHash}
	if err := c.do(ctx, "cancel invoice", http.MethodPost, "/v2/invoices/cancel", body, nil); err != nil {
		return err
	}

	c.log.Info().Msg("Invoice canceled")
	return nil
}

// SubscribeInvoice opens a channel streaming state updates of the invoice
// with the given URL-safe base64 payment hash
func (c *Client) SubscribeInvoice(ctx context.Context, rHashURLSafe string) (*stream.Channel[string, InvoiceState], error) {
	if rHashURLSafe == "" {
		return nil, fmt.Errorf("lnd: payment hash is required")
	}

	ep := c.endpoint("/v2/invoices/subscribe/" + url.PathEscape(rHashURLSafe))
	opts := c.streamOptions(routeInvoiceSubscription, c.cfg.SubscribeLiveness)

	ch, err := stream.Dial[string, InvoiceState](ctx, ep, c.cfg.Macaroon, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to invoice: %w", err)
	}
	return ch, nil
}

// AwaitInvoice follows an invoice until its state satisfies done, returning
// that update. The subscription is closed on return.
func (c *Client) AwaitInvoice(ctx context.Context, rHashURLSafe string, done func(InvoiceState) bool) (*InvoiceState, error) {
	ch, err := c.SubscribeInvoice(ctx, rHashURLSafe)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	for {
		ev, err := ch.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Kind != stream.KindResponse {
			continue
		}

		c.log.Debug().Str("state", string(ev.Result.State)).Msg("Invoice state update")
		if done(ev.Result) {
			state := ev.Result
			return &state, nil
		}
	}
}
