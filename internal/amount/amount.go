// Package amount converts between raw on-chain integers and decimal strings.
package amount

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"voucherPools/internal/model"
)

const (
	displayPlaces  = 2
	fallbackDigits = 3
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var numeral = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// Format renders raw / 10^decimals truncated to two places. A nonzero value
// that truncates to zero is rendered with three significant figures instead,
// so it never reads as an empty balance.
func Format(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return ""
	}
	d := decimal.NewFromBigInt(raw, -int32(decimals))
	truncated := d.Truncate(displayPlaces)
	if !truncated.IsZero() || d.IsZero() {
		return truncated.StringFixed(displayPlaces)
	}
	return toPrecision(d, fallbackDigits)
}

// FormatUnits renders raw / 10^decimals at full precision without trailing zeros.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return ""
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// Parse converts a non-negative decimal numeral into a raw integer amount.
func Parse(input string, decimals uint8) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if !numeral.MatchString(input) {
		return nil, fmt.Errorf("%w: %q is not a decimal numeral", model.ErrInvalidAmount, input)
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidAmount, err)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", model.ErrInvalidAmount, input, decimals)
	}
	raw := shifted.BigInt()
	if raw.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q overflows uint256", model.ErrInvalidAmount, input)
	}
	return raw, nil
}

// Truncate drops digits past the given number of places without rounding.
func Truncate(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Truncate(places).InexactFloat64()
}

// ToFloat returns the display number for a raw amount.
func ToFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// NewTokenValue builds the display, exact and float forms of an amount.
func NewTokenValue(raw *big.Int, decimals uint8) model.TokenValue {
	value := new(big.Int).Set(raw)
	return model.TokenValue{
		Raw:       value,
		Formatted: Format(value, decimals),
		Units:     FormatUnits(value, decimals),
		Value:     ToFloat(value, decimals),
	}
}

// FromFloat encodes a display number as a raw amount, dropping sub-unit digits.
func FromFloat(x float64, decimals uint8) (*big.Int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidAmount, x)
	}
	return decimal.NewFromFloat(x).Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// toPrecision mirrors fixed/exponential significant-figure formatting:
// exponential below 1e-6 or at or above 10^digits.
func toPrecision(d decimal.Decimal, digits int32) string {
	rounded := d.Round(digits - 1 - magnitude(d))
	exp := magnitude(rounded)
	if exp < -6 || exp >= digits {
		mantissa := rounded.Shift(-exp).StringFixed(digits - 1)
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return mantissa + "e" + sign + strconv.Itoa(int(exp))
	}
	return rounded.StringFixed(digits - 1 - exp)
}

func magnitude(d decimal.Decimal) int32 {
	coeff := new(big.Int).Abs(d.Coefficient())
	return int32(len(coeff.String())) - 1 + d.Exponent()
}
