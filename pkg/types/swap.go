package types

import "fmt"

// TokenDescriptor describes a token known to the swap frontend
type TokenDescriptor struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Network  string `json:"network"`
}

// SwapRequest represents a user's request to price or build a swap
type SwapRequest struct {
	From        TokenDescriptor
	To          TokenDescriptor
	Amount      string // human-readable decimal, e.g. "1.5"
	Wallet      string
	SlippageBps int
	ChainID     int64
}

// Pair returns the request pair as "FROM/TO"
func (r *SwapRequest) Pair() string {
	return fmt.Sprintf("%s/%s", r.From.Symbol, r.To.Symbol)
}

// Provenance tells where the numbers of a Quote came from
type Provenance string

const (
	ProvenanceLive      Provenance = "live"      // answered by the upstream aggregator
	ProvenanceSynthetic Provenance = "synthetic" // estimated locally from the static rate table
)

// TxPayload is the executable transaction returned by the swap endpoint
type TxPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
	Gas      string `json:"gas"`
}

// Quote is the canonical quote handed to the UI layer. Amounts are base units.
type Quote struct {
	Provenance   Provenance      `json:"provenance"`
	From         TokenDescriptor `json:"fromToken"`
	To           TokenDescriptor `json:"toToken"`
	FromAmount   string          `json:"fromAmount"`
	ToAmount     string          `json:"toAmount"`
	EstimatedGas string          `json:"estimatedGas"`
	Protocols    []string        `json:"protocols"`
	Tx           *TxPayload      `json:"tx,omitempty"`
}

// IsSynthetic reports whether the quote was produced by the local fallback
func (q *Quote) IsSynthetic() bool {
	return q.Provenance == ProvenanceSynthetic
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount string `json:"source_amount"`
	SourceToken  string `json:"source_token"`
	DestAmount   string `json:"dest_amount"`
	DestToken    string `json:"dest_token"`
	Rate         string `json:"rate"`
	EstimatedGas string `json:"estimated_gas"`
	Route        string `json:"route"`
	Provenance   string `json:"provenance"`
}

// TokenPrice is what one whole Token is worth in Quote units
type TokenPrice struct {
	Provenance Provenance      `json:"provenance"`
	Token      TokenDescriptor `json:"token"`
	Quote      TokenDescriptor `json:"quoteToken"`
	Price      string          `json:"price"` // human-readable decimal
}

// UpstreamHealth is the aggregator's answer to a health check. Provenance is
// synthetic when no transport reached it.
type UpstreamHealth struct {
	Provenance Provenance `json:"provenance"`
	Healthy    bool       `json:"healthy"`
	Status     string     `json:"status"`
	Strategy   string     `json:"strategy,omitempty"`
}
