package tokens

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"enswap/pkg/types"
)

// NativeAddress is the aggregator's placeholder address for a chain's native asset
const NativeAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

var ErrInvalidToken = errors.New("invalid token")

var table = map[string]types.TokenDescriptor{
	"ETH": {
		Symbol:   "ETH",
		Name:     "Ethereum",
		Address:  NativeAddress,
		Decimals: 18,
		Network:  "ethereum",
	},
	"USDC": {
		Symbol:   "USDC",
		Name:     "USD Coin",
		Address:  "0xA0b86a33E6441b8c4C8C0E4a5cF4c4a5cF4c4a5c",
		Decimals: 6,
		Network:  "ethereum",
	},
	"USDT": {
		Symbol:   "USDT",
		Name:     "Tether USD",
		Address:  "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		Decimals: 6,
		Network:  "ethereum",
	},
	"WETH": {
		Symbol:   "WETH",
		Name:     "Wrapped Ethereum",
		Address:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Decimals: 18,
		Network:  "ethereum",
	},
}

// Lookup finds a token by symbol (case-insensitive)
func Lookup(symbol string) (types.TokenDescriptor, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if token, ok := table[symbol]; ok {
		return token, nil
	}
	return types.TokenDescriptor{}, fmt.Errorf("%w: token '%s' not found", ErrInvalidToken, symbol)
}

// ByAddress finds a token by contract address (case-insensitive)
func ByAddress(address string) (types.TokenDescriptor, error) {
	for _, token := range table {
		if strings.EqualFold(token.Address, address) {
			return token, nil
		}
	}
	return types.TokenDescriptor{}, fmt.Errorf("%w: no token with address %s", ErrInvalidToken, address)
}

// All returns every known token sorted by symbol
func All() []types.TokenDescriptor {
	out := make([]types.TokenDescriptor, 0, len(table))
	for _, token := range table {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// IsNative reports whether the token is the chain's native asset
func IsNative(token types.TokenDescriptor) bool {
	return strings.EqualFold(token.Address, NativeAddress)
}

// Validate checks the descriptor invariants and that the token is in the table
func Validate(token types.TokenDescriptor) error {
	if token.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidToken)
	}
	if token.Decimals < 0 {
		return fmt.Errorf("%w: %s has negative decimals", ErrInvalidToken, token.Symbol)
	}
	if !common.IsHexAddress(token.Address) {
		return fmt.Errorf("%w: %s has malformed address %q", ErrInvalidToken, token.Symbol, token.Address)
	}

	known, err := Lookup(token.Symbol)
	if err != nil {
		return err
	}
	if !strings.EqualFold(known.Address, token.Address) || known.Decimals != token.Decimals {
		return fmt.Errorf("%w: %s does not match the token table", ErrInvalidToken, token.Symbol)
	}
	return nil
}
