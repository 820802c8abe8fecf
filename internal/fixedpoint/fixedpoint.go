// Package fixedpoint implements the checked money arithmetic used by the
// accounting engine. Every monetary and price value is a signed 64-bit
// integer scaled by 10^6; no operation in this package ever wraps.
package fixedpoint

import (
	"errors"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of units in 1.0 (6 implied decimals).
const Scale int64 = 1_000_000

// Exponent is the decimal exponent of the engine basis.
const Exponent int32 = -6

// ErrMathOverflow is returned whenever a checked step would overflow,
// divide by zero, or leave the int64 range.
var ErrMathOverflow = errors.New("fixedpoint: math overflow")

// Add returns a+b.
func Add(a, b int64) (int64, error) {
	c := a + b
	if (c > a) != (b > 0) {
		return 0, ErrMathOverflow
	}
	return c, nil
}

// Sub returns a-b.
func Sub(a, b int64) (int64, error) {
	c := a - b
	if (c < a) != (b > 0) {
		return 0, ErrMathOverflow
	}
	return c, nil
}

// Mul returns a*b.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrMathOverflow
	}
	c := a * b
	if c/b != a {
		return 0, ErrMathOverflow
	}
	return c, nil
}

// Div returns a/b truncated toward zero.
func Div(a, b int64) (int64, error) {
	if b == 0 || (a == math.MinInt64 && b == -1) {
		return 0, ErrMathOverflow
	}
	return a / b, nil
}

// Quantity converts an unsigned share count into the signed domain.
func Quantity(q uint64) (int64, error) {
	if q > math.MaxInt64 {
		return 0, ErrMathOverflow
	}
	return int64(q), nil
}

// MulDiv returns qty*price/Scale, the notional (or cost basis) of qty units
// at price. The product is checked before the truncating division.
func MulDiv(qty uint64, price int64) (int64, error) {
	q, err := Quantity(qty)
	if err != nil {
		return 0, err
	}
	raw, err := Mul(q, price)
	if err != nil {
		return 0, err
	}
	return raw / Scale, nil
}

// Rescale converts value, expressed with decimal exponent expo, into the
// engine basis. Finer exponents are truncated toward zero.
func Rescale(value int64, expo int32) (int64, error) {
	switch {
	case expo == Exponent:
		return value, nil
	case expo < Exponent:
		div, err := pow10(int(Exponent - expo))
		if err != nil {
			// Divisor beyond int64 range: every representable value truncates to 0.
			return 0, nil
		}
		return value / div, nil
	default:
		mul, err := pow10(int(expo - Exponent))
		if err != nil {
			return 0, err
		}
		return Mul(value, mul)
	}
}

func pow10(n int) (int64, error) {
	out := int64(1)
	for i := 0; i < n; i++ {
		next, err := Mul(out, 10)
		if err != nil {
			return 0, err
		}
		out = next
	}
	return out, nil
}

// ToDecimal returns v as a decimal for display.
func ToDecimal(v int64) decimal.Decimal {
	return decimal.New(v, Exponent)
}

// FromDecimal converts d into the engine basis, truncating anything finer
// than 6 decimals.
func FromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(-Exponent).Truncate(0)
	if !scaled.BigInt().IsInt64() {
		return 0, ErrMathOverflow
	}
	return scaled.IntPart(), nil
}

// Parse reads a decimal string such as "20.5" into the engine basis.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return FromDecimal(d)
}

// String formats v as a decimal string with trailing zeros removed.
func String(v int64) string {
	return ToDecimal(v).String()
}

// QuantityDecimal returns the share count q as a decimal for display.
func QuantityDecimal(q uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(q), Exponent)
}

// QuantityFromDecimal converts a non-negative decimal share count into the
// engine basis, truncating anything finer than 6 decimals.
func QuantityFromDecimal(d decimal.Decimal) (uint64, error) {
	scaled := d.Shift(-Exponent).Truncate(0).BigInt()
	if !scaled.IsUint64() {
		return 0, ErrMathOverflow
	}
	return scaled.Uint64(), nil
}
