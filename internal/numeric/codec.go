package numeric

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxFractionalDigits matches the numeric precision of the store's money
// columns. Conversions truncate toward zero at this bound, never round.
const MaxFractionalDigits = 18

var five = big.NewInt(5)

// pow5 returns 5^n.
func pow5(n uint) *big.Int {
	return new(big.Int).Exp(five, new(big.Int).SetUint64(uint64(n)), nil)
}

// pow2 returns 2^n.
func pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

// FixedPointToDecimal converts a binary fixed-point integer with the given
// number of fractional bits (radix 2^fractionalBits, e.g. 96 for Q96 prices)
// to an exact decimal string, applying an additional power-of-ten shift for
// differing token/currency decimal places.
//
// raw/2^b * 10^s == raw * 5^b * 10^(s-b), so the conversion stays in exact
// integer arithmetic and never touches floats.
func FixedPointToDecimal(raw *big.Int, fractionalBits uint, scaleShift int32) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}
	coeff := new(big.Int).Mul(raw, pow5(fractionalBits))
	d := decimal.NewFromBigInt(coeff, scaleShift-int32(fractionalBits))
	return d.Truncate(MaxFractionalDigits).String()
}

// DecimalToFixedPoint is the inverse of FixedPointToDecimal within the
// truncation bound: it parses a decimal string and returns the fixed-point
// integer, truncated toward zero.
func DecimalToFixedPoint(value string, fractionalBits uint, scaleShift int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", value, err)
	}
	scaled := d.Shift(-scaleShift).Mul(decimal.NewFromBigInt(pow2(fractionalBits), 0))
	return scaled.Truncate(0).BigInt(), nil
}

// RawAmountToDecimal converts an integer token/currency amount to a decimal
// string using base-10 scaling only.
func RawAmountToDecimal(raw *big.Int, decimals int32) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).Truncate(MaxFractionalDigits).String()
}

// DecimalToRawAmount converts a decimal string back to integer units,
// truncating toward zero.
func DecimalToRawAmount(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", value, err)
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}

// MulDecimalStrings multiplies two decimal strings exactly, truncated to the
// storage precision. Used for derived amounts (e.g. filled value).
func MulDecimalStrings(a, b string) (string, error) {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return "", fmt.Errorf("parse decimal %q: %w", a, err)
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return "", fmt.Errorf("parse decimal %q: %w", b, err)
	}
	return da.Mul(db).Truncate(MaxFractionalDigits).String(), nil
}

// ApplyBps scales an integer amount by a basis-point ratio, truncating toward
// zero. Used for the supply breakdown derived from distribution ratios.
func ApplyBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return out.Quo(out, big.NewInt(10_000))
}
