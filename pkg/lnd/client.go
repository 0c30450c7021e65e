// Package lnd is a client for the REST and WebSocket surface of an LND node.
// Every request carries the node's macaroon; the streaming routes are served
// by pkg/stream channels.
package lnd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illuminodes/bright-lightning/pkg/macaroon"
	"github.com/illuminodes/bright-lightning/pkg/stream"
)

// Defaults used by DefaultConfig
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultSubscribeLiveness = 3
	DefaultPaymentLiveness   = 10
)

// maxErrorBody caps how much of a failed response is read
const maxErrorBody = 64 << 10

// Config configures a Client
type Config struct {
	// Host is the REST listener, host:port without a scheme
	Host     string
	Macaroon macaroon.Macaroon

	// InsecureSkipVerify accepts the node's self-signed certificate
	InsecureSkipVerify bool
	RequestTimeout     time.Duration

	// Stream holds the base options of every streaming channel; liveness
	// thresholds are set per route from the fields below. 0 selects the
	// route default and stream.LivenessDisabled turns the monitor off.
	Stream            stream.Options
	SubscribeLiveness int
	PaymentLiveness   int

	// HTTPClient replaces the client built from the fields above
	HTTPClient *http.Client

	// Observer records REST calls and streaming channels; may be nil
	Observer Observer
}

// Observer is notified of every REST call and hands out the observer of each
// streaming channel. internal/metrics implements it with prometheus
// collectors.
type Observer interface {
	RequestDone(operation, status string, elapsed time.Duration)
	Stream(route string) stream.Observer
}

type nopObserver struct{}

func (nopObserver) RequestDone(string, string, time.Duration) {}
func (nopObserver) Stream(string) stream.Observer             { return nil }

// DefaultConfig returns a configuration with the stock timeouts and liveness
// thresholds
func DefaultConfig(host string, mac macaroon.Macaroon) Config {
	return Config{
		Host:              host,
		Macaroon:          mac,
		RequestTimeout:    DefaultRequestTimeout,
		SubscribeLiveness: DefaultSubscribeLiveness,
		PaymentLiveness:   DefaultPaymentLiveness,
	}
}

// Client talks to one LND node
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a client for the node described by cfg
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("lnd: host is required")
	}
	if cfg.Macaroon.IsZero() {
		return nil, fmt.Errorf("lnd: macaroon is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.SubscribeLiveness == 0 {
		cfg.SubscribeLiveness = DefaultSubscribeLiveness
	}
	if cfg.PaymentLiveness == 0 {
		cfg.PaymentLiveness = DefaultPaymentLiveness
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	cfg.Stream.InsecureSkipVerify = cfg.Stream.InsecureSkipVerify || cfg.InsecureSkipVerify

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: cfg.InsecureSkipVerify,
				},
			},
		}
	}

	parent := log.Logger
	if cfg.Stream.Logger != nil {
		parent = *cfg.Stream.Logger
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        parent.With().Str("node", cfg.Host).Logger(),
	}, nil
}

// Host returns the node address
func (c *Client) Host() string {
	return c.cfg.Host
}

// HTTPClient returns the HTTP client used for REST calls
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) endpoint(path string) stream.Endpoint {
	return stream.Endpoint{Host: c.cfg.Host, Path: path, Secure: true}
}

// streamOptions derives channel options for one route
func (c *Client) streamOptions(route string, liveness int) stream.Options {
	opts := c.cfg.Stream
	opts.LivenessThreshold = liveness
	logger := c.log.With().Str("route", route).Logger()
	opts.Logger = &logger
	if opts.Observer == nil {
		opts.Observer = c.cfg.Observer.Stream(route)
	}
	return opts
}

// do sends one REST request and decodes the JSON answer into out (if non-nil)
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		c.cfg.Observer.RequestDone(operation, status, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.endpoint(path).HTTPURL()
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set(macaroon.HeaderName, c.cfg.Macaroon.Hex())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("operation", operation).Str("method", method).Str("path", path).Msg("Sending REST request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("operation", operation).Msg("REST request failed")
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := NewHTTPError(resp.StatusCode, resp.Status, operation)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr.Node = nodeError(data)
		c.log.Error().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Msg("Node rejected REST request")
		return httpErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty response", operation)
		}
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// nodeError decodes the error body of a failed REST call, which LND writes
// as {"code": …, "message": …}
func nodeError(data []byte) *stream.ApplicationError {
	var body struct {
		Code    *int    `json:"code"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Code == nil || body.Message == nil {
		return nil
	}
	return &stream.ApplicationError{Code: *body.Code, Message: *body.Message}
}

// GetInfo returns the node identity and chain height
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.do(ctx, "get info", http.MethodGet, "/v1/getinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ChannelBalance returns the funds held in channels
func (c *Client) ChannelBalance(ctx context.Context) (*ChannelBalance, error) {
	var balance ChannelBalance
	if err := c.do(ctx, "channel balance", http.MethodGet, "/v1/balance/channels", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// NewAddress derives a fresh on-chain address from the default account
func (c *Client) NewAddress(ctx context.Context) (*NewAddress, error) {
	var addr NewAddress
	if err := c.do(ctx, "new address", http.MethodGet, "/v1/newaddress", nil, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListAddresses lists wallet accounts and their addresses
func (c *Client) ListAddresses(ctx context.Context) (*ListAddressesResponse, error) {
	var resp ListAddressesResponse
	if err := c.do(ctx, "list addresses", http.MethodGet, "/v2/wallet/addresses", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
