package lnd

import (
	"context"
	"fmt"

	"github.com/illuminodes/bright-lightning/pkg/stream"
)

const (
	routePayment = "payment"
	paymentPath  = "/v2/router/send?method=POST"
)

// PaymentChannel opens the router's payment channel. Each PaymentRequest
// sent on it starts a payment whose progress arrives as PaymentResponse
// events.
func (c *Client) PaymentChannel(ctx context.Context) (*stream.Channel[PaymentRequest, PaymentResponse], error) {
	opts := c.streamOptions(routePayment, c.cfg.PaymentLiveness)

	ch, err := stream.Dial[PaymentRequest, PaymentResponse](ctx, c.endpoint(paymentPath), c.cfg.Macaroon, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment channel: %w", err)
	}
	return ch, nil
}

// Pay sends one payment and waits for a final status. A FAILED payment is
// returned without error; the caller inspects Status and FailureReason.
func (c *Client) Pay(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	ch, err := c.PaymentChannel(ctx)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if err := ch.Send(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to send payment request: %w", err)
	}

	for {
		ev, err := ch.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Kind != stream.KindResponse {
			continue
		}

		c.log.Debug().Str("status", string(ev.Result.Status)).Msg("Payment update")
		if ev.Result.Status.Final() {
			resp := ev.Result
			c.log.Info().
				Str("status", string(resp.Status)).
				Str("payment_hash", resp.PaymentHash).
				Msg("Payment finished")
			return &resp, nil
		}
	}
}
