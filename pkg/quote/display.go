package quote

import (
	"fmt"
	"strings"

	"enswap/pkg/types"
	"enswap/pkg/units"
)

// Display formats a quote's base-unit amounts for humans
func Display(q *types.Quote) (*types.QuoteDisplay, error) {
	src, err := units.ToHumanUnits(q.FromAmount, q.From.Decimals)
	if err != nil {
		return nil, fmt.Errorf("source amount: %w", err)
	}
	dst, err := units.ToHumanUnits(q.ToAmount, q.To.Decimals)
	if err != nil {
		return nil, fmt.Errorf("destination amount: %w", err)
	}
	rate, err := units.Ratio(q.FromAmount, q.From.Decimals, q.ToAmount, q.To.Decimals)
	if err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}

	route := strings.Join(q.Protocols, " > ")
	if route == "" {
		route = "direct"
	}

	return &types.QuoteDisplay{
		SourceAmount: src,
		SourceToken:  q.From.Symbol,
		DestAmount:   dst,
		DestToken:    q.To.Symbol,
		Rate:         rate,
		EstimatedGas: q.EstimatedGas,
		Route:        route,
		Provenance:   string(q.Provenance),
	}, nil
}
