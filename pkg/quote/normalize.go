package quote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"enswap/pkg/transport"
	"enswap/pkg/types"
	"enswap/pkg/units"
)

// upstreamToken covers both the v5 (fromToken/toToken) and v6 (srcToken/dstToken) shapes
type upstreamToken struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals *int   `json:"decimals"`
}

type upstreamTx struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Data     string          `json:"data"`
	Value    string          `json:"value"`
	GasPrice string          `json:"gasPrice"`
	Gas      json.RawMessage `json:"gas"`
}

type upstreamResponse struct {
	FromToken    *upstreamToken  `json:"fromToken"`
	ToToken      *upstreamToken  `json:"toToken"`
	SrcToken     *upstreamToken  `json:"srcToken"`
	DstToken     *upstreamToken  `json:"dstToken"`
	FromAmount   string          `json:"fromAmount"`
	ToAmount     string          `json:"toAmount"`
	DstAmount    string          `json:"dstAmount"`
	EstimatedGas json.RawMessage `json:"estimatedGas"`
	Gas          json.RawMessage `json:"gas"`
	Protocols    json.RawMessage `json:"protocols"`
	Tx           *upstreamTx     `json:"tx"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// normalize decodes an upstream payload into the canonical Quote, failing fast
// on any field that does not match the expected shape.
func normalize(endpoint transport.Endpoint, req types.SwapRequest, fromBase *big.Int, payload *transport.Payload) (*types.Quote, error) {
	if payload == nil || !payload.IsJSON() {
		return nil, malformed("body is not JSON")
	}

	var resp upstreamResponse
	dec := json.NewDecoder(bytes.NewReader(payload.JSON))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, malformed("decode: %v", err)
	}

	if err := checkToken("source", firstToken(resp.FromToken, resp.SrcToken), req.From); err != nil {
		return nil, err
	}
	if err := checkToken("destination", firstToken(resp.ToToken, resp.DstToken), req.To); err != nil {
		return nil, err
	}

	toAmount := firstNonEmpty(resp.ToAmount, resp.DstAmount)
	if toAmount == "" {
		return nil, malformed("missing toAmount")
	}
	if _, err := units.ParseBaseUnits(toAmount); err != nil {
		return nil, malformed("toAmount: %v", err)
	}

	fromAmount := fromBase.String()
	if resp.FromAmount != "" {
		if _, err := units.ParseBaseUnits(resp.FromAmount); err != nil {
			return nil, malformed("fromAmount: %v", err)
		}
		fromAmount = resp.FromAmount
	}

	protocols, err := flattenProtocols(resp.Protocols)
	if err != nil {
		return nil, err
	}

	q := &types.Quote{
		Provenance: types.ProvenanceLive,
		From:       req.From,
		To:         req.To,
		FromAmount: fromAmount,
		ToAmount:   toAmount,
		Protocols:  protocols,
	}

	if resp.Tx != nil {
		tx, err := normalizeTx(resp.Tx)
		if err != nil {
			return nil, err
		}
		q.Tx = tx
	}
	if endpoint == transport.EndpointSwap && q.Tx == nil {
		return nil, malformed("swap response has no tx")
	}

	gas := resp.EstimatedGas
	if len(gas) == 0 {
		gas = resp.Gas
	}
	switch {
	case len(gas) > 0:
		q.EstimatedGas, err = decodeUint("estimatedGas", gas)
		if err != nil {
			return nil, err
		}
	case q.Tx != nil:
		q.EstimatedGas = q.Tx.Gas
	default:
		q.EstimatedGas = "0"
	}

	return q, nil
}

func checkToken(side string, got *upstreamToken, want types.TokenDescriptor) error {
	if got == nil {
		return nil
	}
	if got.Address != "" && !strings.EqualFold(got.Address, want.Address) {
		return malformed("%s token address %s does not match %s", side, got.Address, want.Address)
	}
	if got.Decimals != nil && *got.Decimals != want.Decimals {
		return malformed("%s token decimals %d do not match %d", side, *got.Decimals, want.Decimals)
	}
	return nil
}

func normalizeTx(tx *upstreamTx) (*types.TxPayload, error) {
	if !common.IsHexAddress(tx.To) {
		return nil, malformed("tx.to %q is not an address", tx.To)
	}
	if tx.From != "" && !common.IsHexAddress(tx.From) {
		return nil, malformed("tx.from %q is not an address", tx.From)
	}
	if _, err := hexutil.Decode(tx.Data); err != nil {
		return nil, malformed("tx.data: %v", err)
	}

	value := firstNonEmpty(tx.Value, "0")
	if _, err := units.ParseBaseUnits(value); err != nil {
		return nil, malformed("tx.value: %v", err)
	}
	if tx.GasPrice != "" {
		if _, err := units.ParseBaseUnits(tx.GasPrice); err != nil {
			return nil, malformed("tx.gasPrice: %v", err)
		}
	}

	gas := "0"
	if len(tx.Gas) > 0 {
		var err error
		if gas, err = decodeUint("tx.gas", tx.Gas); err != nil {
			return nil, err
		}
	}

	return &types.TxPayload{
		From:     tx.From,
		To:       tx.To,
		Data:     tx.Data,
		Value:    value,
		GasPrice: tx.GasPrice,
		Gas:      gas,
	}, nil
}

// decodeUint accepts a JSON number or a string holding a non-negative integer
func decodeUint(field string, raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", malformed("%s: %v", field, err)
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return "", malformed("%s has unexpected type %T", field, v)
	}
	if _, err := units.ParseBaseUnits(s); err != nil {
		return "", malformed("%s: %v", field, err)
	}
	return s, nil
}

// flattenProtocols turns the nested [[[{"name": ...}]]] route into an ordered,
// de-duplicated list of protocol names.
func flattenProtocols(raw json.RawMessage) ([]string, error) {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, malformed("protocols: %v", err)
	}

	seen := make(map[string]bool)
	var walk func(node any) error
	walk = func(node any) error {
		switch t := node.(type) {
		case []any:
			for _, child := range t {
				if err := walk(child); err != nil {
					return err
				}
			}
		case map[string]any:
			name, ok := t["name"].(string)
			if !ok || name == "" {
				return malformed("protocol entry without name")
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		case string:
			if t != "" && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		default:
			return malformed("protocols contain %T", node)
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	return out, nil
}

func firstToken(tokens ...*upstreamToken) *upstreamToken {
	for _, t := range tokens {
		if t != nil {
			return t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
