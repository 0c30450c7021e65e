package cli

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/illuminodes/bright-lightning/internal/metrics"
	"github.com/illuminodes/bright-lightning/internal/output"
	"github.com/illuminodes/bright-lightning/pkg/bolt11"
	"github.com/illuminodes/bright-lightning/pkg/lnd"
	"github.com/illuminodes/bright-lightning/pkg/lnurl"
)

type payFlags struct {
	timeout  time.Duration
	feeLimit int64
}

func (f *payFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", 60*time.Second, "give up routing after this long")
	cmd.Flags().Int64Var(&f.feeLimit, "fee-limit", 100, "maximum routing fee in satoshis")
}

func (f *payFlags) request(paymentRequest string) lnd.PaymentRequest {
	return lnd.PaymentRequest{
		PaymentRequest: paymentRequest,
		TimeoutSeconds: int32(f.timeout / time.Second),
		FeeLimitSat:    f.feeLimit,
	}
}

// pay sends one payment over the router channel and prints the outcome
func (a *app) pay(cmd *cobra.Command, out *output.Formatter, req lnd.PaymentRequest) error {
	client, err := a.nodeClient()
	if err != nil {
		return err
	}

	resp, err := client.Pay(cmd.Context(), req)
	if err != nil {
		return err
	}

	if err := out.Fields(resp,
		output.F("Status", resp.Status),
		output.F("Payment Hash", resp.PaymentHash),
		output.F("Preimage", resp.PaymentPreimage),
		output.F("Amount", fmt.Sprintf("%d sat", resp.ValueSat)),
		output.F("Fee", fmt.Sprintf("%d sat", resp.FeeSat)),
	); err != nil {
		return err
	}

	if resp.Status == lnd.PaymentFailed {
		return fmt.Errorf("payment failed: %s", resp.FailureReason)
	}
	return nil
}

func (a *app) payCommand() *cobra.Command {
	var flags payFlags

	cmd := &cobra.Command{
		Use:   "pay <payment-request>",
		Short: "Pay a BOLT-11 payment request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := bolt11.Decode(args[0])
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			if inv.AmountMsat == 0 {
				return fmt.Errorf("payment requests without an amount are not supported")
			}
			if time.Now().After(inv.ExpiresAt()) {
				return fmt.Errorf("payment request expired at %s", inv.ExpiresAt().Format(time.RFC3339))
			}
			return a.pay(cmd, out, flags.request(args[0]))
		},
	}
	flags.register(cmd)
	output.AddFormatFlag(cmd)
	return cmd
}

func (a *app) lnaddressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lnaddress",
		Short: "Work with Lightning Addresses",
	}

	var (
		flags payFlags
		pay   bool
	)
	invoiceCmd := &cobra.Command{
		Use:   "invoice <user@domain> <amount-sat>",
		Short: "Request an invoice from a Lightning Address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := lnurl.ParseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseSats(args[1])
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			pr, err := addr.RequestInvoice(cmd.Context(), a.httpClient(), amount*1000)
			if err != nil {
				return err
			}
			hash, err := pr.RHashURLSafe()
			if err != nil {
				return err
			}

			if !pay {
				return out.Fields(pr,
					output.F("Address", addr.String()),
					output.F("Payment Request", pr.PR),
					output.F("Payment Hash", hash),
				)
			}
			return a.pay(cmd, out, flags.request(pr.PR))
		},
	}
	invoiceCmd.Flags().BoolVar(&pay, "pay", false, "pay the invoice through the node")
	flags.register(invoiceCmd)
	output.AddFormatFlag(invoiceCmd)

	cmd.AddCommand(invoiceCmd)
	return cmd
}

// httpClient is used for lookups that do not target the node
func (a *app) httpClient() *http.Client {
	return &http.Client{
		Timeout: a.cfg.Node.RequestTimeout,
		Transport: metrics.Transport("lnurl", &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: a.cfg.Node.InsecureSkipVerify,
			},
		}),
	}
}
