package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"enswap/pkg/quote"
	"enswap/pkg/relay"
	"enswap/pkg/transport"
)

const (
	// EnvPrefix is prepended to every key when read from the environment
	EnvPrefix = "ENSWAP"

	configName = ".enswap"
)

// Config holds the application configuration
type Config struct {
	APIKey       string
	ChainID      int64
	UpstreamURL  string
	RelayURL     string
	CORSRelayURL string
	Budget       time.Duration

	RelayAddr string

	RPCURL     string
	PrivateKey string
	Wallet     string

	SlippageBps int
	LogLevel    string
}

// New returns a viper instance with defaults, env binding and config search
// paths set up. An explicit file overrides the $HOME and . search.
func New(configFile string) *viper.Viper {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetDefault("chain_id", quote.DefaultChainID)
	v.SetDefault("upstream_url", quote.DefaultUpstreamURL)
	v.SetDefault("budget", transport.DefaultBudget)
	v.SetDefault("relay_addr", relay.DefaultAddr)
	v.SetDefault("slippage_bps", 100)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// the key name used by the web frontend is accepted as a fallback
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "ONE_INCH_API_KEY")

	return v
}

// Load reads the optional config file and the environment into a Config
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		APIKey:       strings.TrimSpace(v.GetString("api_key")),
		ChainID:      v.GetInt64("chain_id"),
		UpstreamURL:  strings.TrimSpace(v.GetString("upstream_url")),
		RelayURL:     strings.TrimSpace(v.GetString("relay_url")),
		CORSRelayURL: strings.TrimSpace(v.GetString("cors_relay_url")),
		Budget:       v.GetDuration("budget"),
		RelayAddr:    v.GetString("relay_addr"),
		RPCURL:       strings.TrimSpace(v.GetString("rpc_url")),
		PrivateKey:   strings.TrimSpace(v.GetString("private_key")),
		Wallet:       strings.TrimSpace(v.GetString("wallet")),
		SlippageBps:  v.GetInt("slippage_bps"),
		LogLevel:     v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. A missing API key is allowed: quotes then
// come from a relay or the synthetic estimator.
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	if c.UpstreamURL == "" {
		return errors.New("upstream_url is required")
	}
	if c.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %s", c.Budget)
	}
	if c.SlippageBps < 0 || c.SlippageBps > quote.MaxSlippageBps {
		return fmt.Errorf("slippage_bps must be between 0 and %d, got %d", quote.MaxSlippageBps, c.SlippageBps)
	}
	return nil
}

// Quote returns the quote service configuration
func (c *Config) Quote() quote.Config {
	return quote.Config{
		ChainID:       c.ChainID,
		APIKey:        c.APIKey,
		UpstreamURL:   c.UpstreamURL,
		LocalRelayURL: c.RelayURL,
		CORSRelayURL:  c.CORSRelayURL,
		Budget:        c.Budget,
	}
}

// Relay returns the relay server configuration
func (c *Config) Relay() relay.Config {
	return relay.Config{
		Addr:           c.RelayAddr,
		UpstreamURL:    c.UpstreamURL,
		APIKey:         c.APIKey,
		DefaultChainID: c.ChainID,
	}
}
