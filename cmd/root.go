package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"enswap/config"
	"enswap/pkg/quote"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "enswap",
	Short: "A CLI for token swap quotes with transport fallback",
	Long: `enswap prices token swaps against a DEX aggregator. It reaches the
aggregator through a local relay, a public CORS relay or a direct credentialed
call, and falls back to a clearly marked estimate when none of them answer.

Examples:
  enswap quote 1 ETH to USDC
  enswap swap 0.5 ETH to USDT --wallet 0x...
  enswap swap 100 USDC to ETH --submit
  enswap list-tokens
  enswap price ETH --in USDT
  enswap relay --addr :3001`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.enswap.yaml)")
}

// loadConfig loads configuration and builds the logger every command shares
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(config.New(cfgFile))
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return cfg, logger, nil
}

func newQuoteService(cfg *config.Config, logger *logrus.Logger) (*quote.Service, error) {
	return quote.New(cfg.Quote(), quote.WithLogger(logger))
}
