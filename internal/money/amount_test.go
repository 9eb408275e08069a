package money_test

import (
	"errors"
	"math"
	"testing"

	"CareLedger/internal/money"
)

// ============================================================================
// Test: Make
// ============================================================================

func TestMake_Valid(t *testing.T) {
	a, err := money.Make("Token", 100)
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}
	if a.Unit != "Token" || a.Quantity != 100 {
		t.Errorf("got %v, want 100 Token", a)
	}
}

func TestMake_Zero(t *testing.T) {
	a, err := money.Make("Token", 0)
	if err != nil {
		t.Fatalf("Make(0) should succeed: %v", err)
	}
	if !a.IsZero() {
		t.Error("amount should be zero")
	}
}

func TestMake_Negative_Fails(t *testing.T) {
	_, err := money.Make("Token", -1)
	if !errors.Is(err, money.ErrNegativeQuantity) {
		t.Errorf("want ErrNegativeQuantity, got %v", err)
	}
}

// ============================================================================
// Test: Subtract
// ============================================================================

func TestSubtract_Valid(t *testing.T) {
	a := money.MustMake("Token", 20)
	b := money.MustMake("Token", 5)

	got, err := money.Subtract(a, b)
	if err != nil {
		t.Fatalf("Subtract failed: %v", err)
	}
	if got.Quantity != 15 {
		t.Errorf("got %d, want 15", got.Quantity)
	}
}

func TestSubtract_Exact(t *testing.T) {
	a := money.MustMake("Token", 5)

	got, err := money.Subtract(a, a)
	if err != nil {
		t.Fatalf("Subtract failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("got %d, want 0", got.Quantity)
	}
}

func TestSubtract_NegativeResult_Fails(t *testing.T) {
	a := money.MustMake("Token", 3)
	b := money.MustMake("Token", 5)

	_, err := money.Subtract(a, b)
	if !errors.Is(err, money.ErrNegativeQuantity) {
		t.Errorf("want ErrNegativeQuantity, got %v", err)
	}
}

func TestSubtract_UnitMismatch_Fails(t *testing.T) {
	a := money.MustMake("Token", 10)
	b := money.MustMake("Credit", 5)

	_, err := money.Subtract(a, b)
	if !errors.Is(err, money.ErrUnitMismatch) {
		t.Errorf("want ErrUnitMismatch, got %v", err)
	}
}

// ============================================================================
// Test: Add
// ============================================================================

func TestAdd_Valid(t *testing.T) {
	a := money.MustMake("Token", 7)
	b := money.MustMake("Token", 8)

	got, err := money.Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got.Quantity != 15 {
		t.Errorf("got %d, want 15", got.Quantity)
	}
}

func TestAdd_Overflow_Fails(t *testing.T) {
	a := money.MustMake("Token", math.MaxInt64)
	b := money.MustMake("Token", 1)

	_, err := money.Add(a, b)
	if !errors.Is(err, money.ErrOverflow) {
		t.Errorf("want ErrOverflow, got %v", err)
	}
}

func TestAdd_UnitMismatch_Fails(t *testing.T) {
	a := money.MustMake("Token", 1)
	b := money.MustMake("Credit", 1)

	_, err := money.Add(a, b)
	if !errors.Is(err, money.ErrUnitMismatch) {
		t.Errorf("want ErrUnitMismatch, got %v", err)
	}
}

// ============================================================================
// Test: IsGTE
// ============================================================================

func TestIsGTE(t *testing.T) {
	big := money.MustMake("Token", 100)
	small := money.MustMake("Token", 20)

	if !money.IsGTE(big, small) {
		t.Error("100 >= 20 should hold")
	}
	if money.IsGTE(small, big) {
		t.Error("20 >= 100 should not hold")
	}
	if !money.IsGTE(big, big) {
		t.Error("equal amounts should compare GTE")
	}
}

func TestIsGTE_UnitMismatch(t *testing.T) {
	a := money.MustMake("Token", 100)
	b := money.MustMake("Credit", 1)

	if money.IsGTE(a, b) {
		t.Error("amounts of different units are not comparable")
	}
}
