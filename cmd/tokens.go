package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"enswap/pkg/synthetic"
	"enswap/pkg/tokens"
	"enswap/pkg/types"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens enswap can quote, with their contract addresses and the
fallback rates used when the aggregator is unreachable.

Examples:
  enswap list-tokens
  enswap list-tokens --symbol USD`,
	RunE: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var filtered []types.TokenDescriptor
	for _, token := range tokens.All() {
		if filterSymbol == "" || strings.Contains(token.Symbol, strings.ToUpper(filterSymbol)) {
			filtered = append(filtered, token)
		}
	}

	if jsonOutput {
		return printJSON(filtered)
	}

	displayTokens(filtered)
	return nil
}

func displayTokens(list []types.TokenDescriptor) {
	if len(list) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	for _, token := range list {
		fmt.Printf("  %-10s  %2d decimals  %s\n",
			color.YellowString(token.Symbol),
			token.Decimals,
			color.HiBlackString(token.Address))
	}

	color.Cyan("\nFALLBACK RATES")
	fmt.Println(strings.Repeat("-", 90))
	for _, from := range list {
		for _, to := range tokens.All() {
			if from.Symbol == to.Symbol {
				continue
			}
			if rate, ok := synthetic.Rate(from.Symbol, to.Symbol); ok {
				fmt.Printf("  1 %-5s = %s %s\n", from.Symbol, rate.String(), to.Symbol)
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(list))
}
