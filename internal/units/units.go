// Package units converts between human decimal strings and the 18-decimal
// fixed-point integers used by the platform contract and its stable token.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the fixed-point scale of every amount crossing the ledger boundary.
const Decimals = 18

// ErrInvalidAmount is returned for strings that are not non-negative decimals.
var ErrInvalidAmount = errors.New("invalid amount")

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// One is 1.0 in fixed point.
func One() *big.Int {
	return new(big.Int).Set(scale)
}

// ToFixedPoint parses a non-negative decimal string such as "50", "0.003" or
// "1,234.5" and scales it by 10^18. Thousands separators are accepted only in
// proper groups of three. More than 18 fractional digits is an error.
func ToFixedPoint(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("%w: %q has no fractional digits", ErrInvalidAmount, s)
	}

	whole, err := stripGrouping(whole)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}

	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// MustFixedPoint is ToFixedPoint for constants and tests.
func MustFixedPoint(s string) *big.Int {
	v, err := ToFixedPoint(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromFixedPoint renders v with at most decimals fractional digits, rounding
// half up, with "," thousands separators. Trailing fractional zeros are
// dropped. Nil and zero render as "0".
func FromFixedPoint(v *big.Int, decimals int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	if decimals < 0 {
		decimals = 0
	}
	if decimals > Decimals {
		decimals = Decimals
	}

	negative := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	// Round half up at the requested precision.
	step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals-decimals)), nil)
	half := new(big.Int).Rsh(step, 1)
	rounded := new(big.Int).Add(abs, half)
	rounded.Quo(rounded, step)

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(rounded, unit, new(big.Int))

	out := addThousandsSep(whole.String())
	if decimals > 0 && frac.Sign() != 0 {
		fracStr := frac.String()
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
		out += "." + strings.TrimRight(fracStr, "0")
	}

	if negative && out != "0" {
		return "-" + out
	}
	return out
}

// FormatFixed renders v with two decimals.
func FormatFixed(v *big.Int) string {
	return FromFixedPoint(v, 2)
}

// Whole returns the integer part of v, for callers that only show whole units.
func Whole(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(v, scale)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// stripGrouping removes "," separators after checking they split the
// integer part into groups of three.
func stripGrouping(s string) (string, error) {
	if !strings.Contains(s, ",") {
		return s, nil
	}
	groups := strings.Split(s, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", errors.New("misplaced thousands separator")
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", errors.New("misplaced thousands separator")
		}
	}
	return strings.Join(groups, ""), nil
}

func addThousandsSep(s string) string {
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
