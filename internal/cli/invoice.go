package cli

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/illuminodes/bright-lightning/internal/output"
	"github.com/illuminodes/bright-lightning/pkg/lnd"
	"github.com/illuminodes/bright-lightning/pkg/stream"
)

// parseHash accepts a 32-byte payment hash as hex or standard/URL-safe base64
func parseHash(s string) ([]byte, error) {
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	return nil, fmt.Errorf("invalid payment hash %q: expected 32 bytes as hex or base64", s)
}

func parseSats(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: expected whole satoshis", s)
	}
	return v, nil
}

func (a *app) invoiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create and follow invoices",
	}

	var (
		memo string
		wait bool
	)
	addCmd := &cobra.Command{
		Use:   "add <amount-sat>",
		Short: "Create an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseSats(args[0])
			if err != nil {
				return err
			}
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			inv, err := client.AddInvoice(cmd.Context(), amount, memo)
			if err != nil {
				return err
			}
			if err := out.Fields(inv,
				output.F("Payment Request", inv.PaymentRequest),
				output.F("Payment Hash", inv.RHashHex()),
				output.F("Add Index", inv.AddIndex),
			); err != nil {
				return err
			}

			if !wait {
				return nil
			}
			return a.follow(cmd, out, client, inv.RHashURLSafe())
		},
	}
	addCmd.Flags().StringVar(&memo, "memo", "", "description embedded in the invoice")
	addCmd.Flags().BoolVar(&wait, "wait", false, "follow the invoice until it is settled or canceled")
	output.AddFormatFlag(addCmd)

	subscribeCmd := &cobra.Command{
		Use:   "subscribe <payment-hash>",
		Short: "Follow the state of an invoice until it is settled or canceled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}
			return a.follow(cmd, out, client, base64.URLEncoding.EncodeToString(hash))
		},
	}
	output.AddFormatFlag(subscribeCmd)

	settleCmd := &cobra.Command{
		Use:   "settle <preimage-hex>",
		Short: "Settle an accepted hold invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			if err := client.SettleInvoice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settled")
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <payment-hash>",
		Short: "Cancel an open or accepted invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			if err := client.CancelInvoice(cmd.Context(), base64.StdEncoding.EncodeToString(hash)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "canceled")
			return nil
		},
	}

	cmd.AddCommand(addCmd, subscribeCmd, settleCmd, cancelCmd)
	return cmd
}

// follow prints every state update of an invoice until a final state
func (a *app) follow(cmd *cobra.Command, out *output.Formatter, client *lnd.Client, rHashURLSafe string) error {
	ch, err := client.SubscribeInvoice(cmd.Context(), rHashURLSafe)
	if err != nil {
		return err
	}
	defer ch.Close()

	for {
		ev, err := ch.Next(cmd.Context())
		if err != nil {
			return err
		}
		if ev.Kind != stream.KindResponse {
			continue
		}

		state := ev.Result
		if out.IsJSON() {
			if err := out.JSON(state); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out.Writer(), "%s\t%d sat\n", state.State, state.AmtPaidSat)
		}

		if state.State.Final() {
			return nil
		}
	}
}

func (a *app) hodlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hodl",
		Short: "Manage hold invoices",
	}

	var hashArg string
	addCmd := &cobra.Command{
		Use:   "add <amount-sat>",
		Short: "Create a hold invoice",
		Long: `Create a hold invoice locked to a payment hash. Without --hash a fresh
preimage is generated and printed; keep it to settle the invoice later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseSats(args[0])
			if err != nil {
				return err
			}

			var preimage, hash []byte
			if hashArg != "" {
				if hash, err = parseHash(hashArg); err != nil {
					return err
				}
			} else {
				preimage = make([]byte, 32)
				if _, err := rand.Read(preimage); err != nil {
					return fmt.Errorf("failed to generate preimage: %w", err)
				}
				sum := sha256.Sum256(preimage)
				hash = sum[:]
			}

			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			inv, err := client.AddHodlInvoice(cmd.Context(), base64.StdEncoding.EncodeToString(hash), amount)
			if err != nil {
				return err
			}

			result := struct {
				*lnd.HodlInvoice
				PaymentHash string `json:"payment_hash"`
				Preimage    string `json:"preimage,omitempty"`
			}{inv, hex.EncodeToString(hash), hex.EncodeToString(preimage)}

			fields := []output.Field{
				output.F("Payment Request", inv.PaymentRequest),
				output.F("Payment Hash", result.PaymentHash),
			}
			if preimage != nil {
				fields = append(fields, output.F("Preimage", result.Preimage))
			}
			return out.Fields(result, fields...)
		},
	}
	addCmd.Flags().StringVar(&hashArg, "hash", "", "payment hash (hex or base64) to lock the invoice to")
	output.AddFormatFlag(addCmd)

	cmd.AddCommand(addCmd)
	return cmd
}
