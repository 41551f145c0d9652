// Package fixedpoint implements the unsigned 64.64 fixed-point arithmetic
// used by the gatekeeper's tokenomic engine (spec.md §4.2.1, §9): saturating
// add/sub/mul/div and an exact integer square root, with values serialized
// as their raw 128-bit bit pattern for on-chain compatibility.
//
// No third-party fixed-point or u128 library shipped in the retrieved
// pack, so this builds on math/big — justified in DESIGN.md.
package fixedpoint

import (
	"math/big"
	"strconv"
)

// scale is 2^64: the denominator of the fractional half of the format.
var scale = new(big.Int).Lsh(big.NewInt(1), 64)

// maxRaw is 2^128 - 1, the largest representable raw bit pattern.
var maxRaw = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Fixed is an unsigned 64.64 fixed-point number, held as its raw 128-bit
// bit pattern (value * 2^64).
type Fixed struct {
	raw *big.Int
}

// Zero is the additive identity.
func Zero() Fixed { return Fixed{raw: big.NewInt(0)} }

// FromInt builds a Fixed from a non-negative integer.
func FromInt(n int64) Fixed {
	return Fixed{raw: new(big.Int).Mul(big.NewInt(n), scale)}
}

// FromFloat64 builds a Fixed from a non-negative float64, used at the
// configuration/test boundary only — never on the hot path.
func FromFloat64(f float64) Fixed {
	bf := new(big.Float).Mul(big.NewFloat(f), new(big.Float).SetInt(scale))
	r, _ := bf.Int(nil)
	if r.Sign() < 0 {
		r = big.NewInt(0)
	}
	return Fixed{raw: r}
}

// FromRawBits reconstructs a Fixed from its serialized 128-bit pattern.
func FromRawBits(raw *big.Int) Fixed {
	return Fixed{raw: new(big.Int).Set(raw)}
}

// RawBits returns the raw 128-bit bit pattern (value * 2^64), the
// serialization form used on the wire (spec.md §9).
func (f Fixed) RawBits() *big.Int {
	return new(big.Int).Set(f.raw)
}

// Float64 renders an approximate float64, for logging/tests only.
func (f Fixed) Float64() float64 {
	bf := new(big.Float).Quo(new(big.Float).SetInt(f.raw), new(big.Float).SetInt(scale))
	v, _ := bf.Float64()
	return v
}

// MarshalText renders the value as a plain decimal string, letting a
// Fixed field be read directly out of a TOML config file (naoina/toml
// honors encoding.TextUnmarshaler for scalar values).
func (a Fixed) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(a.Float64(), 'f', -1, 64)), nil
}

// UnmarshalText parses a plain decimal string into a Fixed.
func (a *Fixed) UnmarshalText(text []byte) error {
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return err
	}
	*a = FromFloat64(f)
	return nil
}

func clamp(r *big.Int) *big.Int {
	if r.Sign() < 0 {
		return big.NewInt(0)
	}
	if r.Cmp(maxRaw) > 0 {
		return new(big.Int).Set(maxRaw)
	}
	return r
}

// Add returns a+b, saturating at the representable maximum.
func (a Fixed) Add(b Fixed) Fixed {
	return Fixed{raw: clamp(new(big.Int).Add(a.raw, b.raw))}
}

// Sub returns a-b, saturating at zero (this format is unsigned).
func (a Fixed) Sub(b Fixed) Fixed {
	return Fixed{raw: clamp(new(big.Int).Sub(a.raw, b.raw))}
}

// Mul returns a*b, saturating at the representable maximum.
func (a Fixed) Mul(b Fixed) Fixed {
	r := new(big.Int).Mul(a.raw, b.raw)
	r.Div(r, scale)
	return Fixed{raw: clamp(r)}
}

// Div returns a/b. Division by zero returns Zero() rather than panicking.
// The tokenomic updates guard their data-dependent divisors (dt, p_bench,
// sum_share) per spec.md §4.2.1; the PhaRate parameter divisor is not
// checked.
func (a Fixed) Div(b Fixed) Fixed {
	if b.raw.Sign() == 0 {
		return Zero()
	}
	r := new(big.Int).Mul(a.raw, scale)
	r.Div(r, b.raw)
	return Fixed{raw: clamp(r)}
}

// Min returns the smaller of a, b.
func (a Fixed) Min(b Fixed) Fixed {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a, b.
func (a Fixed) Max(b Fixed) Fixed {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Cmp compares a to b: -1, 0, 1.
func (a Fixed) Cmp(b Fixed) int { return a.raw.Cmp(b.raw) }

// IsZero reports whether the value is exactly zero.
func (a Fixed) IsZero() bool { return a.raw.Sign() == 0 }

// Sqrt returns the exact integer square root of a fixed-point value:
// since raw(v) = v*2^64, sqrt(v)*2^64 = sqrt(raw(v)*2^64), computed with
// math/big's exact integer Sqrt (no floating-point rounding).
func (a Fixed) Sqrt() Fixed {
	shifted := new(big.Int).Lsh(a.raw, 64)
	return Fixed{raw: new(big.Int).Sqrt(shifted)}
}
