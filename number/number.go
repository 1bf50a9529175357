// Package number implements sprachli's arbitrary-precision decimal Number
// type, backing both bytecode Number constants and runtime Number values.
//
// It is a thin wrapper around [github.com/shopspring/decimal.Decimal],
// the arbitrary-precision decimal library this implementation is grounded
// on (see DESIGN.md): sprachli numbers are decimal literals with no fixed
// width, and shopspring/decimal gives exact base-10 arithmetic without the
// binary-rounding surprises a float64 would introduce for literals like
// `0.1`.
package number

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Number is an arbitrary-precision decimal value.
type Number struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Number{d: decimal.Zero}

// FromInt64 creates a Number from a machine integer.
func FromInt64(v int64) Number {
	return Number{d: decimal.NewFromInt(v)}
}

// FromBigInt creates a Number from an arbitrary-precision integer.
func FromBigInt(v *big.Int) Number {
	return Number{d: decimal.NewFromBigInt(v, 0)}
}

// Parse parses canonical base-10 decimal text (as produced by [Number.Text])
// into a Number. It is used both by the compiler, to turn a number literal's
// source text into a constant, and by the bytecode codec, to decode a
// Number constant's stored text.
func Parse(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number literal %q: %w", s, err)
	}
	return Number{d: d}, nil
}

// Text renders n as canonical base-10 decimal text, suitable for storing
// in the bytecode constant pool and for round-tripping through [Parse].
func (n Number) Text() string {
	return n.d.String()
}

// String implements fmt.Stringer.
func (n Number) String() string {
	return n.Text()
}

// Equal reports whether n and other represent the same numeric value.
func (n Number) Equal(other Number) bool {
	return n.d.Equal(other.d)
}

// Compare returns -1, 0, or 1 as n is less than, equal to, or greater than other.
func (n Number) Compare(other Number) int {
	return n.d.Cmp(other.d)
}

// IsInteger reports whether n has no fractional part.
func (n Number) IsInteger() bool {
	return n.d.IsInteger()
}

// BigInt returns n truncated to its integer part. Callers must check
// [Number.IsInteger] first; sprachli's bitwise and shift operators are
// only defined for integral operands (see errors raised by the vm package).
func (n Number) BigInt() *big.Int {
	return n.d.BigInt()
}

// Add returns n + other.
func (n Number) Add(other Number) Number { return Number{d: n.d.Add(other.d)} }

// Sub returns n - other.
func (n Number) Sub(other Number) Number { return Number{d: n.d.Sub(other.d)} }

// Mul returns n * other.
func (n Number) Mul(other Number) Number { return Number{d: n.d.Mul(other.d)} }

// Div returns n / other. Division by zero panics with decimal's own
// divide-by-zero panic; callers (the vm package) must check other against
// Zero first and raise a sprachli ValueError instead of letting this
// propagate.
func (n Number) Div(other Number) Number { return Number{d: n.d.Div(other.d)} }

// Mod returns n truncated-modulo other.
func (n Number) Mod(other Number) Number { return Number{d: n.d.Mod(other.d)} }

// Neg returns -n.
func (n Number) Neg() Number { return Number{d: n.d.Neg()} }

// IsZero reports whether n is exactly zero.
func (n Number) IsZero() bool { return n.d.IsZero() }
