package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"enswap/pkg/parser"
	"enswap/pkg/quote"
	"enswap/pkg/types"
)

var (
	quoteChainID  int64
	quoteSlippage int
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Get a swap quote",
	Long: `Get a price quote for swapping one token into another.

If no transport can reach the aggregator, an estimate from a static rate table
is shown instead and clearly marked as such.

Examples:
  enswap quote 1 ETH to USDC
  enswap quote 250 USDC to ETH --slippage 50
  enswap quote 1 WETH to USDT --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Int64Var(&quoteChainID, "chain", 0, "Chain id (default from config)")
	quoteCmd.Flags().IntVar(&quoteSlippage, "slippage", -1, "Slippage tolerance in basis points (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	command, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	slippage := cfg.SlippageBps
	if quoteSlippage >= 0 {
		slippage = quoteSlippage
	}
	chainID := cfg.ChainID
	if quoteChainID > 0 {
		chainID = quoteChainID
	}

	req, err := command.SwapRequest(cfg.Wallet, slippage, chainID)
	if err != nil {
		return err
	}

	svc, err := newQuoteService(cfg, logger)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	q, err := svc.GetQuote(context.Background(), req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return err
	}

	display, err := quote.Display(q)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"quote":   q,
			"display": display,
		})
	}

	displayQuote(display, q)
	return nil
}

func displayQuote(d *types.QuoteDisplay, q *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", d.SourceAmount, color.YellowString(d.SourceToken))
	fmt.Printf("  To:                ~%s %s\n", d.DestAmount, color.YellowString(d.DestToken))
	fmt.Printf("  Rate:              1 %s = %s %s\n", d.SourceToken, d.Rate, d.DestToken)
	fmt.Printf("  Estimated Gas:     %s\n", d.EstimatedGas)
	fmt.Printf("  Route:             %s\n", color.CyanString(d.Route))

	if q.IsSynthetic() {
		color.Yellow("\n  Using estimated pricing: the aggregator could not be reached.")
		color.Yellow("  Amounts come from a static rate table and are not executable.")
	} else {
		fmt.Printf("  Source:            %s\n", color.GreenString("live aggregator quote"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
