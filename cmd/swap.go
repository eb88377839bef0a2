package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"enswap/pkg/parser"
	"enswap/pkg/quote"
	"enswap/pkg/submit"
	"enswap/pkg/types"
)

var (
	swapWallet     string
	swapSlippage   int
	swapChainID    int64
	noConfirm      bool
	submitTx       bool
	allowEstimated bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Build, and optionally send, a swap transaction",
	Long: `Fetch an executable swap transaction from the aggregator.

By default the transaction is printed for signing elsewhere. With --submit it
is signed with the configured private key and sent through rpc_url.

Estimated quotes carry no transaction and are refused by --submit unless
--allow-estimated is given.

Examples:
  enswap swap 1 ETH to USDC --wallet 0x...
  enswap swap 100 USDC to ETH --submit
  enswap swap 0.5 WETH to USDT --submit --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapWallet, "wallet", "", "Wallet address the swap is built for (default from config or signing key)")
	swapCmd.Flags().Int64Var(&swapChainID, "chain", 0, "Chain id (default from config)")
	swapCmd.Flags().IntVar(&swapSlippage, "slippage", -1, "Slippage tolerance in basis points (default from config)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVar(&submitTx, "submit", false, "Sign and send the transaction (requires rpc_url and private_key)")
	swapCmd.Flags().BoolVar(&allowEstimated, "allow-estimated", false, "Let an estimated quote through the submission guard")
}

func runSwap(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	command, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	chainID := cfg.ChainID
	if swapChainID > 0 {
		chainID = swapChainID
	}

	var submitter *submit.Submitter
	if submitTx {
		var closeClient func()
		submitter, closeClient, err = submit.Dial(ctx, cfg.RPCURL, cfg.PrivateKey, chainID, submit.WithLogger(logger))
		if err != nil {
			return err
		}
		defer closeClient()
	}

	wallet := firstSet(swapWallet, cfg.Wallet)
	if wallet == "" && submitter != nil {
		wallet = submitter.Address().Hex()
	}

	slippage := cfg.SlippageBps
	if swapSlippage >= 0 {
		slippage = swapSlippage
	}

	req, err := command.SwapRequest(wallet, slippage, chainID)
	if err != nil {
		return err
	}

	svc, err := newQuoteService(cfg, logger)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Building swap transaction..."
		s.Start()
	}

	q, err := svc.GetSwapTransaction(ctx, req)
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

	if jsonOutput && submitter == nil {
		return printJSON(map[string]any{
			"quote":   q,
			"display": display,
		})
	}

	if !jsonOutput {
		displayQuote(display, q)
		if q.Tx != nil && (verbose || submitter == nil) {
			displayTransaction(q.Tx)
		}
	}

	if submitter == nil {
		return nil
	}

	if !noConfirm && !jsonOutput {
		if !confirmSwap(q) {
			fmt.Println("\nSwap cancelled.")
			return nil
		}
	}

	s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Sending transaction..."
		s.Start()
	}

	hash, err := submitter.Submit(ctx, q, submit.Options{AllowSynthetic: allowEstimated})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		if errors.Is(err, submit.ErrSyntheticQuote) {
			return fmt.Errorf("%w (the aggregator was unreachable; pass --allow-estimated to override)", err)
		}
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"quote":   q,
			"display": display,
			"tx_hash": hash,
		})
	}

	color.Green("\n✓ Swap transaction sent!")
	fmt.Printf("  Transaction Hash: %s\n\n", color.CyanString(hash))
	return nil
}

func displayTransaction(tx *types.TxPayload) {
	color.Cyan("  Transaction")
	fmt.Printf("    To:        %s\n", tx.To)
	fmt.Printf("    Value:     %s wei\n", tx.Value)
	fmt.Printf("    Gas:       %s\n", tx.Gas)
	if tx.GasPrice != "" {
		fmt.Printf("    Gas Price: %s wei\n", tx.GasPrice)
	}
	data := tx.Data
	if len(data) > 74 {
		data = data[:74] + "..."
	}
	fmt.Printf("    Data:      %s\n\n", color.HiBlackString(data))
}

func confirmSwap(q *types.Quote) bool {
	reader := bufio.NewReader(os.Stdin)
	if q.IsSynthetic() {
		color.Yellow("\nThis quote is an estimate, not a live aggregator price.")
	}
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
