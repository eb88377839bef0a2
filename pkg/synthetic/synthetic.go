// Package synthetic fabricates an internally consistent quote from a static
// exchange-rate table when no transport could reach the aggregator.
package synthetic

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"enswap/pkg/types"
	"enswap/pkg/units"
)

const (
	// HaircutBps is the execution-cost haircut applied to every synthetic quote (0.3%)
	HaircutBps = 30

	// EstimatedGas is reported for every synthetic quote
	EstimatedGas = "21000"

	// ProtocolPlaceholder is the single route entry of a synthetic quote
	ProtocolPlaceholder = "SYNTHETIC_ESTIMATE"
)

type pair struct {
	from string
	to   string
}

var (
	usdPerEth = decimal.NewFromInt(2500)
	ethPerUsd = decimal.RequireFromString("0.0004")
	one       = decimal.NewFromInt(1)
)

// rates maps (from, to) to how many TO one FROM buys
var rates = map[pair]decimal.Decimal{
	{"ETH", "USDC"}:  usdPerEth,
	{"USDC", "ETH"}:  ethPerUsd,
	{"ETH", "USDT"}:  usdPerEth,
	{"USDT", "ETH"}:  ethPerUsd,
	{"USDC", "USDT"}: one,
	{"USDT", "USDC"}: one,
	{"WETH", "USDC"}: usdPerEth,
	{"USDC", "WETH"}: ethPerUsd,
	{"WETH", "USDT"}: usdPerEth,
	{"USDT", "WETH"}: ethPerUsd,
	{"ETH", "WETH"}:  one,
	{"WETH", "ETH"}:  one,
}

// Rate returns the table rate for a pair. Same-symbol pairs are 1. Unknown pairs
// fall back to 1 and report ok=false.
func Rate(from, to string) (rate decimal.Decimal, ok bool) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return one, true
	}
	if r, found := rates[pair{from, to}]; found {
		return r, true
	}
	return one, false
}

// Price returns the table price of one FROM in TO with no haircut applied.
// Unknown pairs are priced at zero rather than at the unit fallback of Rate.
func Price(from, to string) decimal.Decimal {
	if r, ok := Rate(from, to); ok {
		return r
	}
	return decimal.Zero
}

// Synthesize builds a synthetic quote:
// toAmount = floor(amount * rate * (1 - HaircutBps/10000) * 10^toDecimals).
func Synthesize(req types.SwapRequest) (*types.Quote, error) {
	fromBase, err := units.ToBaseUnitsInt(req.Amount, req.From.Decimals)
	if err != nil {
		return nil, err
	}
	if req.To.Decimals < 0 {
		return nil, fmt.Errorf("%w: unsupported decimals %d", units.ErrInvalidAmount, req.To.Decimals)
	}

	rate, _ := Rate(req.From.Symbol, req.To.Symbol)
	factor := decimal.New(10000-HaircutBps, -4)

	toBase := decimal.NewFromBigInt(fromBase, -int32(req.From.Decimals)).
		Mul(rate).
		Mul(factor).
		Shift(int32(req.To.Decimals)).
		Floor().
		BigInt()

	return &types.Quote{
		Provenance:   types.ProvenanceSynthetic,
		From:         req.From,
		To:           req.To,
		FromAmount:   fromBase.String(),
		ToAmount:     toBase.String(),
		EstimatedGas: EstimatedGas,
		Protocols:    []string{ProtocolPlaceholder},
	}, nil
}
