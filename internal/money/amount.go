package money

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by amount arithmetic. Subtraction is rejecting, never
// saturating: an operation that would produce a negative quantity fails.
var (
	ErrNegativeQuantity = errors.New("money: quantity must be non-negative")
	ErrUnitMismatch     = errors.New("money: unit mismatch")
	ErrOverflow         = errors.New("money: quantity overflow")
)

// Amount is an immutable non-negative quantity denominated in a fixed unit.
// The zero value is an empty amount of the empty unit and compares equal to
// Zero("").
type Amount struct {
	Unit     string
	Quantity int64
}

// Make constructs an Amount, rejecting negative quantities.
func Make(unit string, quantity int64) (Amount, error) {
	if quantity < 0 {
		return Amount{}, fmt.Errorf("%w: %d", ErrNegativeQuantity, quantity)
	}
	return Amount{Unit: unit, Quantity: quantity}, nil
}

// MustMake is Make for statically-known quantities (fees, test fixtures).
// Panics on negative quantity.
func MustMake(unit string, quantity int64) Amount {
	a, err := Make(unit, quantity)
	if err != nil {
		panic(err)
	}
	return a
}

// Zero returns the empty amount of the given unit.
func Zero(unit string) Amount {
	return Amount{Unit: unit}
}

// Add returns a + b, failing on unit mismatch or int64 overflow.
func Add(a, b Amount) (Amount, error) {
	if a.Unit != b.Unit {
		return Amount{}, fmt.Errorf("%w: %q vs %q", ErrUnitMismatch, a.Unit, b.Unit)
	}
	if a.Quantity > math.MaxInt64-b.Quantity {
		return Amount{}, fmt.Errorf("%w: %d + %d", ErrOverflow, a.Quantity, b.Quantity)
	}
	return Amount{Unit: a.Unit, Quantity: a.Quantity + b.Quantity}, nil
}

// Subtract returns a − b. Fails when units differ or the result would be
// negative; the result is never clamped to zero.
func Subtract(a, b Amount) (Amount, error) {
	if a.Unit != b.Unit {
		return Amount{}, fmt.Errorf("%w: %q vs %q", ErrUnitMismatch, a.Unit, b.Unit)
	}
	if a.Quantity < b.Quantity {
		return Amount{}, fmt.Errorf("%w: %d - %d", ErrNegativeQuantity, a.Quantity, b.Quantity)
	}
	return Amount{Unit: a.Unit, Quantity: a.Quantity - b.Quantity}, nil
}

// IsGTE reports whether a >= b. Amounts of different units are never
// comparable and IsGTE returns false for them.
func IsGTE(a, b Amount) bool {
	return a.Unit == b.Unit && a.Quantity >= b.Quantity
}

// IsZero reports whether the amount has zero quantity.
func (a Amount) IsZero() bool {
	return a.Quantity == 0
}

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Quantity, a.Unit)
}
