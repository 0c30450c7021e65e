package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illuminodes/bright-lightning/internal/fakenode"
	"github.com/illuminodes/bright-lightning/pkg/bolt11"
	"github.com/illuminodes/bright-lightning/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// isolated points the config search at files that do not exist
func isolated(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		"--config", filepath.Join(dir, "bright.yaml"),
		"--env-file", filepath.Join(dir, "bright.env"),
		"--log-level", "warn",
	}
}

func nodeArgs(t *testing.T, node *fakenode.Node, args ...string) []string {
	path := filepath.Join(t.TempDir(), "admin.macaroon")
	require.NoError(t, os.WriteFile(path, fakenode.DefaultMacaroon, 0o600))

	base := append(isolated(t), "--host", node.Host(), "--macaroon", path, "--insecure")
	return append(args, base...)
}

func newTestNode(t *testing.T) *fakenode.Node {
	node := fakenode.New(fakenode.Options{})
	t.Cleanup(node.Close)
	return node
}

func TestInfo(t *testing.T) {
	node := newTestNode(t)

	out, err := run(t, nodeArgs(t, node, "info")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Alias:")
	assert.Contains(t, out, "fakenode")

	out, err = run(t, nodeArgs(t, node, "info", "-o", "json")...)
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "fakenode", info["alias"])
}

func TestBalance(t *testing.T) {
	node := newTestNode(t)

	out, err := run(t, nodeArgs(t, node, "balance")...)
	require.NoError(t, err)
	assert.Contains(t, out, "1000000 sat")
}

func TestAddressCommands(t *testing.T) {
	node := newTestNode(t)

	out, err := run(t, nodeArgs(t, node, "address", "new")...)
	require.NoError(t, err)
	assert.Contains(t, out, "bcrt1q")

	out, err = run(t, nodeArgs(t, node, "address", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "bcrt1qdefault0")
	assert.Contains(t, out, "change")
}

func TestInvoiceAdd(t *testing.T) {
	node := newTestNode(t)

	out, err := run(t, nodeArgs(t, node, "invoice", "add", "100", "--memo", "coffee", "-o", "json")...)
	require.NoError(t, err)

	var inv struct {
		PaymentRequest string `json:"payment_request"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &inv))

	decoded, err := bolt11.Decode(inv.PaymentRequest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), decoded.AmountSat())
	assert.Equal(t, "coffee", decoded.Description)
	assert.Equal(t, fakenode.StateOpen, node.InvoiceState(decoded.PaymentHash))
}

func TestInvoiceSubscribeStopsAtFinalState(t *testing.T) {
	node := newTestNode(t)
	_, pr := node.CreateInvoice(7, "")
	inv, err := bolt11.Decode(pr)
	require.NoError(t, err)
	require.True(t, node.PayInvoice(inv.PaymentHash))

	out, err := run(t, nodeArgs(t, node, "invoice", "subscribe", inv.PaymentHashHex())...)
	require.NoError(t, err)
	assert.Equal(t, "SETTLED\t7 sat\n", out)
}

func TestInvoiceCancel(t *testing.T) {
	node := newTestNode(t)
	_, pr := node.CreateInvoice(7, "")
	inv, err := bolt11.Decode(pr)
	require.NoError(t, err)

	out, err := run(t, nodeArgs(t, node, "invoice", "cancel", inv.PaymentHashURLSafe())...)
	require.NoError(t, err)
	assert.Equal(t, "canceled\n", out)
	assert.Equal(t, fakenode.StateCanceled, node.InvoiceState(inv.PaymentHash))
}

func TestHodlInvoiceSettledAfterPayment(t *testing.T) {
	node := newTestNode(t)

	out, err := run(t, nodeArgs(t, node, "hodl", "add", "42", "-o", "json")...)
	require.NoError(t, err)

	var hodl struct {
		PaymentRequest string `json:"payment_request"`
		PaymentHash    string `json:"payment_hash"`
		Preimage       string `json:"preimage"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hodl))
	require.Len(t, hodl.Preimage, 64)

	raw, err := hex.DecodeString(hodl.PaymentHash)
	require.NoError(t, err)
	var hash [32]byte
	copy(hash[:], raw)

	paid := make(chan string, 1)
	go func() {
		out, err := run(t, nodeArgs(t, node, "pay", hodl.PaymentRequest)...)
		if assert.NoError(t, err) {
			paid <- out
		}
	}()

	require.Eventually(t, func() bool {
		return node.InvoiceState(hash) == fakenode.StateAccepted
	}, 5*time.Second, 10*time.Millisecond)

	out, err = run(t, nodeArgs(t, node, "invoice", "settle", hodl.Preimage)...)
	require.NoError(t, err)
	assert.Equal(t, "settled\n", out)

	select {
	case out := <-paid:
		assert.Contains(t, out, "SUCCEEDED")
		assert.Contains(t, out, hodl.Preimage)
	case <-time.After(5 * time.Second):
		t.Fatal("payment did not finish")
	}
}

func TestPayFailure(t *testing.T) {
	node := newTestNode(t)
	pr, err := fakenode.EncodePaymentRequest(10, [32]byte{1, 2, 3}, "")
	require.NoError(t, err)

	out, err := run(t, nodeArgs(t, node, "pay", pr)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fakenode.FailureNoRoute)
	assert.Contains(t, out, "FAILED")
}

func TestPayRejectsAmountlessRequest(t *testing.T) {
	node := newTestNode(t)
	pr, err := fakenode.EncodePaymentRequest(0, [32]byte{1}, "")
	require.NoError(t, err)

	_, err = run(t, nodeArgs(t, node, "pay", pr)...)
	assert.ErrorContains(t, err, "without an amount")
	assert.Empty(t, node.Payments())
}

func TestLightningAddressInvoice(t *testing.T) {
	node := newTestNode(t)
	addr := node.AddUser("alice")

	out, err := run(t, nodeArgs(t, node, "lnaddress", "invoice", addr, "21")...)
	require.NoError(t, err)
	assert.Contains(t, out, "lnbcrt210n")
	assert.Contains(t, out, "alice@")

	out, err = run(t, nodeArgs(t, node, "lnaddress", "invoice", addr, "21", "--pay")...)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCEEDED")
}

func TestNodeNotConfigured(t *testing.T) {
	t.Setenv("BRIGHT_LND_HOST", "")
	t.Setenv("LND_HOST", "")

	_, err := run(t, append([]string{"info"}, isolated(t)...)...)
	assert.ErrorIs(t, err, config.ErrNodeNotConfigured)
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, append([]string{"info", "--log-level", "loud"}, isolated(t)[:4]...)...)
	assert.ErrorContains(t, err, "invalid log level")

	_, err = run(t, append([]string{"info", "--host", "https://node:8080"}, isolated(t)...)...)
	assert.ErrorContains(t, err, "without a scheme")

	_, err = run(t, append([]string{"invoice", "add", "ten"}, isolated(t)...)...)
	assert.ErrorContains(t, err, "whole satoshis")
}

func TestParseHash(t *testing.T) {
	want := bytes.Repeat([]byte{0xfb}, 32)

	for _, s := range []string{
		strings.Repeat("fb", 32),
		"+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/v7+/s=",
		"-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_v7-_s=",
	} {
		got, err := parseHash(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got)
	}

	for _, s := range []string{"", "abcd", strings.Repeat("zz", 32)} {
		_, err := parseHash(s)
		assert.Error(t, err, s)
	}
}
