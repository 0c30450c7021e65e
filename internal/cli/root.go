// Package cli implements the bright command line: node queries, invoices,
// hold invoices, payments and Lightning Address invoices against one LND node.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/illuminodes/bright-lightning/internal/metrics"
	"github.com/illuminodes/bright-lightning/pkg/config"
	"github.com/illuminodes/bright-lightning/pkg/lnd"
)

// app holds the state shared by the commands of one invocation
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	cfg    *config.Config
	client *lnd.Client
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "bright",
		Short: "Lightning node client for LND",
		Long: `A command-line client for an LND node. Talks to the node's REST API and
follows invoices and payments over its streaming WebSocket routes.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./bright.yaml, /etc/bright/bright.yaml or ~/.bright/bright.yaml)")
	flags.StringVar(&a.envFile, "env-file", "", "environment file (default is ./.env or ./bright.env)")
	flags.String("host", "", "LND REST address, host:port")
	flags.String("macaroon", "", "path to the macaroon file")
	flags.Bool("insecure", false, "accept the node's self-signed certificate")
	flags.String("log-level", "", "log level (trace|debug|info|warn|error)")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address while the command runs")

	a.v.BindPFlag("node.host", flags.Lookup("host"))
	a.v.BindPFlag("node.macaroon_path", flags.Lookup("macaroon"))
	a.v.BindPFlag("node.insecure_skip_verify", flags.Lookup("insecure"))
	a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	a.v.BindPFlag("metrics.listen_address", flags.Lookup("metrics-addr"))

	rootCmd.AddCommand(
		a.infoCommand(),
		a.balanceCommand(),
		a.addressCommand(),
		a.invoiceCommand(),
		a.hodlCommand(),
		a.payCommand(),
		a.lnaddressCommand(),
	)

	return rootCmd
}

// Execute runs the command line until it finishes or a signal arrives
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and configures logging
func (a *app) setup(cmd *cobra.Command, args []string) error {
	configFile := a.cfgFile
	if configFile == "" {
		configFile = config.FindConfigFile(config.ServiceName)
	}
	envFile := a.envFile
	if envFile == "" {
		envFile = config.FindEnvironmentFile(config.ServiceName)
	}

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return err
	}

	// Flags win over files and the environment
	if a.v.IsSet("node.host") {
		cfg.Node.Host = a.v.GetString("node.host")
	}
	if a.v.IsSet("node.macaroon_path") {
		cfg.Node.MacaroonPath = a.v.GetString("node.macaroon_path")
		cfg.Node.MacaroonHex = ""
	}
	if a.v.IsSet("node.insecure_skip_verify") {
		cfg.Node.InsecureSkipVerify = a.v.GetBool("node.insecure_skip_verify")
	}
	if a.v.IsSet("log.level") {
		cfg.Log.Level = a.v.GetString("log.level")
	}
	if a.v.IsSet("metrics.listen_address") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = a.v.GetString("metrics.listen_address")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Log.ConfigureZerolog()
	log.Logger = log.Output(cfg.Log.Writer(os.Stderr))

	log.Debug().
		Str("config_file", configFile).
		Str("env_file", envFile).
		Str("node", cfg.Node.Host).
		Msg("Configuration loaded")

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.Metrics.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("address", cfg.Metrics.ListenAddress).Msg("Metrics server failed")
			}
		}()
	}

	a.cfg = cfg
	return nil
}

// nodeClient returns the node client, creating it on first use
func (a *app) nodeClient() (*lnd.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	lndCfg, err := a.cfg.LNDConfig()
	if err != nil {
		return nil, err
	}
	lndCfg.Observer = metrics.Recorder{}

	client, err := lnd.NewClient(lndCfg)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}
