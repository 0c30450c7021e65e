package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/illuminodes/bright-lightning/internal/output"
)

func (a *app) infoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show node identity and chain state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			info, err := client.GetInfo(cmd.Context())
			if err != nil {
				return err
			}

			return out.Fields(info,
				output.F("Alias", info.Alias),
				output.F("Pubkey", info.IdentityPubkey),
				output.F("Version", info.Version),
				output.F("Block Height", info.BlockHeight),
				output.F("Synced", info.SyncedToChain),
			)
		},
	}
	output.AddFormatFlag(cmd)
	return cmd
}

func (a *app) balanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show channel balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			balance, err := client.ChannelBalance(cmd.Context())
			if err != nil {
				return err
			}

			return out.Fields(balance,
				output.F("Local", sats(balance.LocalBalance.Sat)),
				output.F("Remote", sats(balance.RemoteBalance.Sat)),
				output.F("Pending Local", sats(balance.PendingOpenLocalBalance.Sat)),
				output.F("Pending Remote", sats(balance.PendingOpenRemoteBalance.Sat)),
			)
		},
	}
	output.AddFormatFlag(cmd)
	return cmd
}

func (a *app) addressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Manage on-chain addresses",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Derive a fresh address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			addr, err := client.NewAddress(cmd.Context())
			if err != nil {
				return err
			}
			return out.Fields(addr, output.F("Address", addr.Address))
		},
	}
	output.AddFormatFlag(newCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the addresses of the default account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.nodeClient()
			if err != nil {
				return err
			}
			out, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := client.ListAddresses(cmd.Context())
			if err != nil {
				return err
			}
			addresses, err := resp.DefaultAddresses()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(addresses))
			for _, addr := range addresses {
				kind := "receive"
				if addr.IsInternal {
					kind = "change"
				}
				rows = append(rows, []string{addr.Address, kind, strconv.FormatInt(addr.Balance, 10)})
			}
			return out.Table(addresses, []string{"ADDRESS", "TYPE", "BALANCE"}, rows)
		},
	}
	output.AddFormatFlag(listCmd)

	cmd.AddCommand(newCmd, listCmd)
	return cmd
}

func sats(v uint64) string {
	return strconv.FormatUint(v, 10) + " sat"
}
