package fixedpoint

import (
	"errors"
	"math/big"
)

// Decimal is the scale of the protocol's 7-decimal fixed point representation.
// A value of 10_000_000 represents 1.0.
const Decimal = 10_000_000

// ErrOverOrUnderFlow is returned whenever a checked operation leaves the
// signed 128-bit domain. Callers must abort the surrounding operation rather
// than continue with a truncated value.
var ErrOverOrUnderFlow = errors.New("fixedpoint: over or underflow")

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// One returns the fixed point representation of 1.0.
func One() *big.Int { return big.NewInt(Decimal) }

func checked(v *big.Int) (*big.Int, error) {
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return nil, ErrOverOrUnderFlow
	}
	return v, nil
}

// Add returns a + b, failing when the result leaves the 128-bit domain.
func Add(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrOverOrUnderFlow
	}
	return checked(new(big.Int).Add(a, b))
}

// Sub returns a - b, failing when the result leaves the 128-bit domain.
func Sub(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrOverOrUnderFlow
	}
	return checked(new(big.Int).Sub(a, b))
}

// Mul returns a * b, failing when the result leaves the 128-bit domain.
func Mul(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrOverOrUnderFlow
	}
	return checked(new(big.Int).Mul(a, b))
}

// Div returns a / b truncated toward zero. Division by zero is an error, not
// a panic, so the surrounding ledger operation can roll back cleanly.
func Div(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil || b.Sign() == 0 {
		return nil, ErrOverOrUnderFlow
	}
	return checked(new(big.Int).Quo(a, b))
}

// Neg returns -a.
func Neg(a *big.Int) (*big.Int, error) {
	if a == nil {
		return nil, ErrOverOrUnderFlow
	}
	return checked(new(big.Int).Neg(a))
}

// MulDiv returns a * b / den with the intermediate product checked. Every
// share conversion and interest computation in the protocol reduces to this
// shape, always truncating down so rounding never mints value.
func MulDiv(a, b, den *big.Int) (*big.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return Div(product, den)
}
