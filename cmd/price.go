package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"enswap/pkg/tokens"
	"enswap/pkg/types"
)

var priceIn string

var priceCmd = &cobra.Command{
	Use:   "price <token>",
	Short: "Show the price of one token",
	Long: `Price one whole token in another token, USDC by default. The token may be
given by symbol or by contract address.

If the aggregator cannot be reached the static table price is shown and marked
as an estimate.

Examples:
  enswap price ETH
  enswap price WETH --in ETH
  enswap price 0xdAC17F958D2ee523a2206206994597C13D831ec7`,
	Args: cobra.ExactArgs(1),
	RunE: runPrice,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the aggregator is serving",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(healthCmd)

	priceCmd.Flags().StringVar(&priceIn, "in", "USDC", "Token the price is expressed in")
}

// resolveToken accepts a symbol or a contract address
func resolveToken(ref string) (types.TokenDescriptor, error) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return tokens.ByAddress(ref)
	}
	return tokens.Lookup(ref)
}

func runPrice(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	token, err := resolveToken(args[0])
	if err != nil {
		return err
	}
	in, err := resolveToken(priceIn)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := newQuoteService(cfg, logger)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching price..."
		s.Start()
	}

	p, err := svc.GetTokenPrice(context.Background(), token, in)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(p)
	}

	fmt.Printf("\n  1 %s = %s %s\n", color.YellowString(p.Token.Symbol), p.Price, color.YellowString(p.Quote.Symbol))
	if p.Provenance == types.ProvenanceSynthetic {
		color.Yellow("  Estimated from the static rate table; the aggregator could not be reached.")
	}
	fmt.Println()
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := newQuoteService(cfg, logger)
	if err != nil {
		return err
	}

	h := svc.HealthCheck(context.Background())
	if jsonOutput {
		return printJSON(h)
	}

	switch {
	case h.Healthy:
		color.Green("\n  Aggregator is healthy (via %s)\n\n", h.Strategy)
	case h.Provenance == types.ProvenanceSynthetic:
		color.Red("\n  Aggregator is unreachable\n\n")
	default:
		color.Yellow("\n  Aggregator reports status %q (via %s)\n\n", h.Status, h.Strategy)
	}
	return nil
}
