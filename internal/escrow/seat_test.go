package escrow_test

import (
	"errors"
	"testing"

	"CareLedger/internal/escrow"
	"CareLedger/internal/money"
)

// ============================================================================
// Test: lifecycle transitions
// ============================================================================

func TestSeat_CommitThenFinalize(t *testing.T) {
	s := escrow.NewSeat(escrow.Payload{PatientID: "p1", DoctorID: "d1"})

	if s.State() != escrow.StateOpen {
		t.Fatalf("new seat should be open, got %s", s.State())
	}

	if err := s.Commit(escrow.KeywordFee, money.MustMake("Token", 20)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if s.State() != escrow.StateCommitted {
		t.Fatalf("got %s, want committed", s.State())
	}

	if err := s.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if s.State() != escrow.StateFinalized {
		t.Errorf("got %s, want finalized", s.State())
	}
}

func TestSeat_FinalizeWithoutCommit_Fails(t *testing.T) {
	s := escrow.NewSeat(escrow.Payload{PatientID: "p1"})

	err := s.Finalize()
	if !errors.Is(err, escrow.ErrSeatNotFunded) {
		t.Errorf("want ErrSeatNotFunded, got %v", err)
	}
}

func TestSeat_FinalizeTwice_Fails(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))

	if err := s.Finalize(); err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}

	err := s.Finalize()
	if !errors.Is(err, escrow.ErrSeatClosed) {
		t.Errorf("want ErrSeatClosed, got %v", err)
	}
}

func TestSeat_RefundFromOpen(t *testing.T) {
	s := escrow.NewSeat(escrow.Payload{PatientID: "p1"})

	if err := s.Refund(); err != nil {
		t.Fatalf("refund from open failed: %v", err)
	}
	if s.State() != escrow.StateRefunded {
		t.Errorf("got %s, want refunded", s.State())
	}
}

func TestSeat_RefundFromCommitted(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordPrice, money.MustMake("Token", 9))

	if err := s.Refund(); err != nil {
		t.Fatalf("refund from committed failed: %v", err)
	}
}

func TestSeat_RefundAfterFinalize_Fails(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))
	s.Finalize()

	err := s.Refund()
	if !errors.Is(err, escrow.ErrSeatClosed) {
		t.Errorf("want ErrSeatClosed, got %v", err)
	}
}

func TestSeat_FinalizeAfterRefund_Fails(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))
	s.Refund()

	err := s.Finalize()
	if !errors.Is(err, escrow.ErrSeatClosed) {
		t.Errorf("want ErrSeatClosed, got %v", err)
	}
}

func TestSeat_CommitTwice_Fails(t *testing.T) {
	s := escrow.NewSeat(escrow.Payload{PatientID: "p1"})

	if err := s.Commit(escrow.KeywordFee, money.MustMake("Token", 20)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := s.Commit(escrow.KeywordFee, money.MustMake("Token", 30)); err == nil {
		t.Error("second commit should fail")
	}
}

// ============================================================================
// Test: allocation access
// ============================================================================

func TestSeat_AmountAllocated(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))

	got, err := s.AmountAllocated(escrow.KeywordFee)
	if err != nil {
		t.Fatalf("AmountAllocated failed: %v", err)
	}
	if got.Quantity != 20 {
		t.Errorf("got %d, want 20", got.Quantity)
	}
}

func TestSeat_AmountAllocated_WrongKeyword_Fails(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))

	_, err := s.AmountAllocated(escrow.KeywordPrice)
	if !errors.Is(err, escrow.ErrKeywordMismatch) {
		t.Errorf("want ErrKeywordMismatch, got %v", err)
	}
}

func TestSeat_AmountAllocated_Unfunded_Fails(t *testing.T) {
	s := escrow.NewSeat(escrow.Payload{PatientID: "p1"})

	_, err := s.AmountAllocated(escrow.KeywordFee)
	if !errors.Is(err, escrow.ErrSeatNotFunded) {
		t.Errorf("want ErrSeatNotFunded, got %v", err)
	}
}

func TestSeat_AmountAllocated_AfterFinalize_Fails(t *testing.T) {
	s := escrow.NewFundedSeat(escrow.Payload{PatientID: "p1"}, escrow.KeywordFee, money.MustMake("Token", 20))
	s.Finalize()

	_, err := s.AmountAllocated(escrow.KeywordFee)
	if !errors.Is(err, escrow.ErrSeatClosed) {
		t.Errorf("want ErrSeatClosed, got %v", err)
	}
}
