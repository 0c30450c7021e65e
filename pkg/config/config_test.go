package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string        `yaml:"name" env:"SAMPLE_NAME" default:"alice"`
	Count   int           `yaml:"count" default:"7"`
	Enabled bool          `yaml:"enabled" default:"true"`
	Wait    time.Duration `yaml:"wait" default:"5s"`
	Hosts   []string      `yaml:"hosts"`
	Inner   sampleInner   `yaml:"inner"`
}

type sampleInner struct {
	Ratio float64 `yaml:"ratio" default:"0.5"`
	Limit uint16  `yaml:"limit" default:"10"`
}

func TestLoaderDefaults(t *testing.T) {
	var s sample
	require.NoError(t, NewLoader(LoaderOptions{}).Load(&s))

	assert.Equal(t, "alice", s.Name)
	assert.Equal(t, 7, s.Count)
	assert.True(t, s.Enabled)
	assert.Equal(t, 5*time.Second, s.Wait)
	assert.Equal(t, 0.5, s.Inner.Ratio)
	assert.Equal(t, uint16(10), s.Inner.Limit)
}

func TestLoaderPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "sample.yaml")
	envFile := filepath.Join(dir, "sample.env")

	require.NoError(t, os.WriteFile(yamlFile, []byte("name: bob\ncount: 9\ninner:\n  ratio: 0.25\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile, []byte("# comment\nexport COUNT=11\nINNER_LIMIT='20'\n"), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("COUNT")
		os.Unsetenv("INNER_LIMIT")
	})
	t.Setenv("SAMPLE_NAME", "carol")
	t.Setenv("TEST_SAMPLE_NAME", "dave")
	t.Setenv("HOSTS", "a:1, b:2,")

	var s sample
	loader := NewLoader(LoaderOptions{ConfigFile: yamlFile, EnvironmentFile: envFile, EnvPrefix: "test"})
	require.NoError(t, loader.Load(&s))

	assert.Equal(t, "dave", s.Name, "prefixed variable wins")
	assert.Equal(t, 11, s.Count, "environment file beats yaml")
	assert.Equal(t, 0.25, s.Inner.Ratio, "yaml beats default")
	assert.Equal(t, uint16(20), s.Inner.Limit)
	assert.Equal(t, []string{"a:1", "b:2"}, s.Hosts)
}

func TestLoaderMissingFilesAreOptional(t *testing.T) {
	var s sample
	loader := NewLoader(LoaderOptions{ConfigFile: "/nonexistent/x.yaml", EnvironmentFile: "/nonexistent/.env"})
	require.NoError(t, loader.Load(&s))
	assert.Equal(t, "alice", s.Name)
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("name: [unterminated"), 0o600))
	assert.Error(t, NewLoader(LoaderOptions{ConfigFile: badYAML}).Load(&sample{}))

	badEnv := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(badEnv, []byte("NOEQUALS\n"), 0o600))
	assert.Error(t, NewLoader(LoaderOptions{EnvironmentFile: badEnv}).Load(&sample{}))

	t.Setenv("ENABLED", "maybe")
	assert.Error(t, NewLoader(LoaderOptions{}).Load(&sample{}))

	assert.Error(t, NewLoader(LoaderOptions{}).Load(sample{}))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Node.RequestTimeout)
	assert.Equal(t, 3, cfg.Stream.SubscribeLiveness)
	assert.Equal(t, 10, cfg.Stream.PaymentLiveness)
	assert.Equal(t, 64, cfg.Stream.EventBuffer)
	assert.False(t, cfg.Metrics.Enabled)

	assert.ErrorIs(t, cfg.RequireNode(), ErrNodeNotConfigured)
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bright.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
node:
  host: lnd.local:8080
  insecure_skip_verify: true
stream:
  subscribe_liveness: 5
  strict_decoding: true
`), 0o600))

	t.Setenv("BRIGHT_LND_MACAROON", "0201036c6e64")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(file, "")
	require.NoError(t, err)

	assert.Equal(t, "lnd.local:8080", cfg.Node.Host)
	assert.True(t, cfg.Node.InsecureSkipVerify)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.RequireNode())

	lndCfg, err := cfg.LNDConfig()
	require.NoError(t, err)
	assert.Equal(t, "0201036c6e64", lndCfg.Macaroon.Hex())
	assert.Equal(t, 5, lndCfg.SubscribeLiveness)
	assert.True(t, lndCfg.Stream.StrictDecoding)
	assert.True(t, lndCfg.Stream.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, lndCfg.Stream.HandshakeTimeout)
}

func TestLivenessCanBeSwitchedOff(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bright.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
node:
  host: lnd.local:8080
stream:
  payment_liveness: -1
`), 0o600))
	t.Setenv("BRIGHT_LND_MACAROON", "0201")

	cfg, err := Load(file, "")
	require.NoError(t, err)

	lndCfg, err := cfg.LNDConfig()
	require.NoError(t, err)
	assert.Equal(t, -1, lndCfg.PaymentLiveness)
	assert.Equal(t, 3, lndCfg.SubscribeLiveness)
}

func TestMacaroonFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.macaroon")
	require.NoError(t, os.WriteFile(path, []byte{0x02, 0x01}, 0o600))

	cfg := &Config{Node: NodeConfig{Host: "node", MacaroonPath: path}}
	mac, err := cfg.Macaroon()
	require.NoError(t, err)
	assert.Equal(t, "0201", mac.Hex())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("", "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"host with scheme", func(c *Config) { c.Node.Host = "https://node:8080" }},
		{"request timeout", func(c *Config) { c.Node.RequestTimeout = 0 }},
		{"handshake timeout", func(c *Config) { c.Node.HandshakeTimeout = -time.Second }},
		{"event buffer", func(c *Config) { c.Stream.EventBuffer = 0 }},
		{"liveness", func(c *Config) { c.Stream.PaymentLiveness = -2 }},
		{"metrics address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = "nope"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigureZerolog(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	(&LogConfig{Level: "warn"}).ConfigureZerolog()
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	(&LogConfig{Level: "error", Debug: true}).ConfigureZerolog()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	(&LogConfig{Level: ""}).ConfigureZerolog()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestLogWriter(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, f, (&LogConfig{Format: "json"}).Writer(f))
	assert.IsType(t, zerolog.ConsoleWriter{}, (&LogConfig{Format: "console"}).Writer(f))
	assert.Equal(t, f, (&LogConfig{Format: "auto"}).Writer(f), "regular files are not terminals")
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	assert.Empty(t, FindEnvironmentFile("bright"))

	require.NoError(t, os.MkdirAll("config", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("config", "bright.yaml"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile("bright.env", []byte(""), 0o600))

	assert.Equal(t, filepath.Join("config", "bright.yaml"), FindConfigFile("bright"))
	assert.Equal(t, "bright.env", FindEnvironmentFile("bright"))
}
