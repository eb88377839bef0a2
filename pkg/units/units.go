// Package units converts token amounts between human-readable decimal strings
// and integer base units (wei-like) for a token of a given precision.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the fixed fractional precision of ToHumanUnits.
const DisplayPlaces = 6

// maxDigits bounds base-unit values to the uint256 range used on chain.
const maxDigits = 78

// maxInputLen bounds the human-readable input so the coefficient stays small.
const maxInputLen = 128

var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits returns floor(human * 10^decimals) as a base-10 integer string.
func ToBaseUnits(human string, decimals int) (string, error) {
	v, err := ToBaseUnitsInt(human, decimals)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// ToBaseUnitsInt is ToBaseUnits returning the big.Int form.
func ToBaseUnitsInt(human string, decimals int) (*big.Int, error) {
	if err := checkDecimals(decimals); err != nil {
		return nil, err
	}

	human = strings.TrimSpace(human)
	if human == "" {
		return nil, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	if len(human) > maxInputLen {
		return nil, fmt.Errorf("%w: amount is longer than %d characters", ErrInvalidAmount, maxInputLen)
	}

	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, human)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, human)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}

	// integer digits after scaling; reject before materializing 10^exp
	digits := len(d.Coefficient().String()) + int(d.Exponent()) + decimals
	if digits > maxDigits {
		return nil, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, human)
	}
	// below one base unit; flooring would only build a huge 10^-exp first
	if digits <= 0 {
		return new(big.Int), nil
	}

	return d.Shift(int32(decimals)).Floor().BigInt(), nil
}

// ToHumanUnits returns base / 10^decimals with exactly six fractional digits.
func ToHumanUnits(base string, decimals int) (string, error) {
	if err := checkDecimals(decimals); err != nil {
		return "", err
	}

	v, err := ParseBaseUnits(base)
	if err != nil {
		return "", err
	}

	return decimal.NewFromBigInt(v, -int32(decimals)).StringFixed(DisplayPlaces), nil
}

// ParseBaseUnits parses a non-negative base-10 integer string.
func ParseBaseUnits(base string) (*big.Int, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("%w: base amount is empty", ErrInvalidAmount)
	}
	for _, r := range base {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, base)
		}
	}
	if len(strings.TrimLeft(base, "0")) > maxDigits {
		return nil, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, base)
	}

	v, ok := new(big.Int).SetString(base, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, base)
	}
	return v, nil
}

// Ratio returns (toBase/10^toDec) / (fromBase/10^fromDec) with six
// fractional digits, for "1 FROM = x TO" displays. A zero input yields "0.000000".
func Ratio(fromBase string, fromDec int, toBase string, toDec int) (string, error) {
	from, err := ParseBaseUnits(fromBase)
	if err != nil {
		return "", err
	}
	to, err := ParseBaseUnits(toBase)
	if err != nil {
		return "", err
	}
	if from.Sign() == 0 {
		return decimal.Zero.StringFixed(DisplayPlaces), nil
	}

	num := decimal.NewFromBigInt(to, -int32(toDec))
	den := decimal.NewFromBigInt(from, -int32(fromDec))
	return num.DivRound(den, DisplayPlaces+2).StringFixed(DisplayPlaces), nil
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > maxDigits {
		return fmt.Errorf("%w: unsupported decimals %d", ErrInvalidAmount, decimals)
	}
	return nil
}
