package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/illuminodes/bright-lightning/pkg/lnd"
	"github.com/illuminodes/bright-lightning/pkg/macaroon"
	"github.com/illuminodes/bright-lightning/pkg/stream"
)

// ServiceName prefixes config file names and environment overrides
const ServiceName = "bright"

// ErrNodeNotConfigured is returned when a command needs a node but no host or
// credential was given
var ErrNodeNotConfigured = errors.New("lnd node not configured: host and macaroon are required")

// Config contains all configuration for the bright client
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Node    NodeConfig    `yaml:"node"`
	Stream  StreamConfig  `yaml:"stream"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"auto"` // auto, console, json
	Debug  bool   `yaml:"debug" env:"DEBUG" default:"false"`
}

// NodeConfig locates the LND node and its credential
type NodeConfig struct {
	Host               string        `yaml:"host" env:"LND_HOST"`
	MacaroonPath       string        `yaml:"macaroon_path" env:"LND_MACAROON_PATH"`
	MacaroonHex        string        `yaml:"-" env:"LND_MACAROON"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"LND_INSECURE" default:"false"`
	RequestTimeout     time.Duration `yaml:"request_timeout" default:"30s"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout" default:"30s"`
}

// StreamConfig tunes the streaming channels
type StreamConfig struct {
	EventBuffer       int           `yaml:"event_buffer" default:"64"`
	OutboundBuffer    int           `yaml:"outbound_buffer" default:"16"`
	WriteTimeout      time.Duration `yaml:"write_timeout" default:"10s"`
	SubscribeLiveness int           `yaml:"subscribe_liveness" default:"3"`
	PaymentLiveness   int           `yaml:"payment_liveness" default:"10"`
	StrictDecoding    bool          `yaml:"strict_decoding" default:"false"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" env:"METRICS_ENABLED" default:"false"`
	ListenAddress string `yaml:"listen_address" env:"METRICS_ADDRESS" default:"127.0.0.1:9102"`
}

// Load loads the configuration from defaults, configFile, envFile and the
// environment, then validates it
func Load(configFile, envFile string) (*Config, error) {
	cfg := &Config{}

	loader := NewLoader(LoaderOptions{
		ConfigFile:      configFile,
		EnvironmentFile: envFile,
		EnvPrefix:       ServiceName,
	})
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges. Node settings are only checked for shape
// here; RequireNode enforces their presence.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: expected auto, console or json", c.Log.Format)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	if c.Node.Host != "" && strings.Contains(c.Node.Host, "://") {
		return fmt.Errorf("node host %q must be host:port without a scheme", c.Node.Host)
	}

	if c.Node.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Node.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}

	if c.Stream.EventBuffer <= 0 || c.Stream.OutboundBuffer <= 0 {
		return fmt.Errorf("stream buffers must be positive")
	}
	if c.Stream.WriteTimeout < 0 {
		return fmt.Errorf("write timeout must not be negative")
	}
	// -1 switches the monitor off
	if c.Stream.SubscribeLiveness < -1 || c.Stream.PaymentLiveness < -1 {
		return fmt.Errorf("liveness thresholds must be -1 or above")
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddress); err != nil {
			return fmt.Errorf("invalid metrics listen address %s: %w", c.Metrics.ListenAddress, err)
		}
	}

	return nil
}

// RequireNode reports ErrNodeNotConfigured unless a host and a credential
// source are set
func (c *Config) RequireNode() error {
	if c.Node.Host == "" || (c.Node.MacaroonPath == "" && c.Node.MacaroonHex == "") {
		return ErrNodeNotConfigured
	}
	return nil
}

// Macaroon reads the credential, preferring the hex value over the file
func (c *Config) Macaroon() (macaroon.Macaroon, error) {
	if c.Node.MacaroonHex != "" {
		return macaroon.FromHex(c.Node.MacaroonHex)
	}
	if c.Node.MacaroonPath == "" {
		return macaroon.Macaroon{}, ErrNodeNotConfigured
	}
	return macaroon.Load(c.Node.MacaroonPath)
}

// StreamOptions returns the channel options shared by every route
func (c *Config) StreamOptions() stream.Options {
	return stream.Options{
		HandshakeTimeout:   c.Node.HandshakeTimeout,
		WriteTimeout:       c.Stream.WriteTimeout,
		InsecureSkipVerify: c.Node.InsecureSkipVerify,
		EventBuffer:        c.Stream.EventBuffer,
		OutboundBuffer:     c.Stream.OutboundBuffer,
		StrictDecoding:     c.Stream.StrictDecoding,
	}
}

// LNDConfig builds the node client configuration, loading the macaroon
func (c *Config) LNDConfig() (lnd.Config, error) {
	if err := c.RequireNode(); err != nil {
		return lnd.Config{}, err
	}

	mac, err := c.Macaroon()
	if err != nil {
		return lnd.Config{}, err
	}

	return lnd.Config{
		Host:               c.Node.Host,
		Macaroon:           mac,
		InsecureSkipVerify: c.Node.InsecureSkipVerify,
		RequestTimeout:     c.Node.RequestTimeout,
		Stream:             c.StreamOptions(),
		SubscribeLiveness:  c.Stream.SubscribeLiveness,
		PaymentLiveness:    c.Stream.PaymentLiveness,
	}, nil
}

// ConfigureZerolog sets the global log level
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	} else if parsed, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
}

// Writer returns the log output for f: a console writer for terminals (or
// when forced with format "console"), raw JSON otherwise
func (c *LogConfig) Writer(f *os.File) io.Writer {
	switch strings.ToLower(c.Format) {
	case "json":
		return f
	case "console":
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	if term.IsTerminal(int(f.Fd())) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	return f
}
