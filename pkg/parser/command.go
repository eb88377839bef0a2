package parser

import (
	"fmt"
	"regexp"
	"strings"

	"enswap/pkg/tokens"
	"enswap/pkg/types"
)

// Command is a parsed "<amount> <FROM> to <TO>" phrase
type Command struct {
	Amount string
	From   string
	To     string
}

var commandPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+)\s+(?:TO|FOR|->)\s+([A-Z0-9.]+)$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 ETH to USDC"
//   - "0.5 WETH for USDT"
//   - "100 USDC -> ETH"
func ParseSwapCommand(command string) (*Command, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SWAP ")
	command = strings.TrimPrefix(command, "QUOTE ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <token> to <token>' (e.g., '1 ETH to USDC')")
	}

	return &Command{
		Amount: matches[1],
		From:   NormalizeTokenSymbol(matches[2]),
		To:     NormalizeTokenSymbol(matches[3]),
	}, nil
}

// ValidateCommand validates that a command has all required fields
func ValidateCommand(cmd *Command) error {
	if cmd.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if cmd.From == "" {
		return fmt.Errorf("source token is required")
	}
	if cmd.To == "" {
		return fmt.Errorf("destination token is required")
	}
	return nil
}

// SwapRequest resolves the command's symbols against the token table
func (c *Command) SwapRequest(wallet string, slippageBps int, chainID int64) (types.SwapRequest, error) {
	if err := ValidateCommand(c); err != nil {
		return types.SwapRequest{}, err
	}
	from, err := tokens.Lookup(c.From)
	if err != nil {
		return types.SwapRequest{}, err
	}
	to, err := tokens.Lookup(c.To)
	if err != nil {
		return types.SwapRequest{}, err
	}
	return types.SwapRequest{
		From:        from,
		To:          to,
		Amount:      c.Amount,
		Wallet:      wallet,
		SlippageBps: slippageBps,
		ChainID:     chainID,
	}, nil
}

// NormalizeTokenSymbol normalizes token symbols to the token table's form
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"ETHER":  "ETH",
		"TETHER": "USDT",
		"USDC.E": "USDC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
