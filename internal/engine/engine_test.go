package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"CareLedger/internal/engine"
	"CareLedger/internal/escrow"
	"CareLedger/internal/event"
	"CareLedger/internal/money"
	"CareLedger/internal/payout"
	"CareLedger/internal/registry"
)

type captureSink struct {
	mu    sync.Mutex
	insts []payout.Instruction
}

func (c *captureSink) Deliver(_ context.Context, inst payout.Instruction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insts = append(c.insts, inst)
	return nil
}

func (c *captureSink) wait(t *testing.T, n int) []payout.Instruction {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.insts) >= n {
			out := append([]payout.Instruction(nil), c.insts...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d payouts", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type nopReporter struct{}

func (nopReporter) ReportFailure(context.Context, payout.Failure) error { return nil }

type testHarness struct {
	engine  *engine.SettlementEngine
	reg     *registry.Registry
	outputs chan engine.Output
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, platformFee int64) *testHarness {
	t.Helper()

	reg := registry.New()
	dispatcher := payout.NewDispatcher(256, nopReporter{}, zerolog.Nop(), nil)
	outputs := make(chan engine.Output, 256)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)
	t.Cleanup(cancel)

	eng := engine.NewSettlementEngine(
		money.MustMake("Token", platformFee),
		reg,
		dispatcher,
		outputs,
		zerolog.Nop(),
		nil,
	)

	return &testHarness{engine: eng, reg: reg, outputs: outputs, cancel: cancel}
}

// lastOutput drains the output channel and returns the final emission.
func (h *testHarness) lastOutput(t *testing.T) engine.Output {
	t.Helper()
	var last engine.Output
	found := false
	for {
		select {
		case out := <-h.outputs:
			last = out
			found = true
		default:
			if !found {
				t.Fatal("no output emitted")
			}
			return last
		}
	}
}

func consultationSeat(doctorID, patientID string, amount int64) *escrow.Seat {
	return escrow.NewFundedSeat(
		escrow.Payload{DoctorID: doctorID, PatientID: patientID},
		escrow.KeywordFee,
		money.MustMake("Token", amount),
	)
}

func purchaseSeat(supplierID, patientID, medicineID string, amount int64) *escrow.Seat {
	return escrow.NewFundedSeat(
		escrow.Payload{SupplierID: supplierID, PatientID: patientID, MedicineID: medicineID},
		escrow.KeywordPrice,
		money.MustMake("Token", amount),
	)
}

// ============================================================================
// Test: consultation settlement end-to-end
// ============================================================================

func TestSettleConsultation_EndToEnd(t *testing.T) {
	h := newHarness(t, 5)
	sink := &captureSink{}

	if err := h.engine.RegisterDoctor("d1", sink); err != nil {
		t.Fatalf("register doctor: %v", err)
	}
	if err := h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100)); err != nil {
		t.Fatalf("register patient: %v", err)
	}

	seat := consultationSeat("d1", "p1", 20)
	receipt, err := h.engine.SettleConsultation(seat)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if receipt.ValidForMillis != 43_200_000 {
		t.Errorf("valid_for_ms: got %d, want 43200000", receipt.ValidForMillis)
	}
	if receipt.SettlementID != seat.ID() {
		t.Errorf("receipt settlement id %s, want %s", receipt.SettlementID, seat.ID())
	}

	balance, err := h.reg.PatientBalance("p1")
	if err != nil {
		t.Fatalf("balance lookup: %v", err)
	}
	if balance.Quantity != 80 {
		t.Errorf("patient balance: got %d, want 80", balance.Quantity)
	}

	insts := sink.wait(t, 1)
	if insts[0].Amount.Quantity != 15 {
		t.Errorf("doctor payout: got %d, want 15", insts[0].Amount.Quantity)
	}
	if insts[0].Role != "doctor" || insts[0].PayeeID != "d1" {
		t.Errorf("payout addressed to %s %q", insts[0].Role, insts[0].PayeeID)
	}

	if seat.State() != escrow.StateFinalized {
		t.Errorf("seat state: got %s, want finalized", seat.State())
	}

	out := h.lastOutput(t)
	if out.Envelope.EventType != event.EventTypeConsultationSettled {
		t.Errorf("event type: got %s", out.Envelope.EventType)
	}
	if out.Batch == nil || len(out.Batch.Journals) != 3 {
		t.Errorf("expected three-leg journal batch, got %+v", out.Batch)
	}
}

func TestSettlePurchase_ReceiptHasNoValidityWindow(t *testing.T) {
	h := newHarness(t, 5)
	sink := &captureSink{}

	h.engine.RegisterSupplier("s1", sink)
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 50))

	seat := purchaseSeat("s1", "p1", "aspirin", 30)
	receipt, err := h.engine.SettlePurchase(seat)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if receipt.ValidForMillis != 0 {
		t.Errorf("purchase receipt should carry no validity window, got %d", receipt.ValidForMillis)
	}

	insts := sink.wait(t, 1)
	if insts[0].Amount.Quantity != 25 {
		t.Errorf("supplier payout: got %d, want 25", insts[0].Amount.Quantity)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 20 {
		t.Errorf("patient balance: got %d, want 20", balance.Quantity)
	}

	out := h.lastOutput(t)
	if out.Envelope.EventType != event.EventTypePurchaseSettled {
		t.Errorf("event type: got %s", out.Envelope.EventType)
	}
}

// ============================================================================
// Test: rejection paths leave no state change
// ============================================================================

func TestSettleConsultation_UnknownDoctor(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100))

	seat := consultationSeat("ghost", "p1", 20)
	_, err := h.engine.SettleConsultation(seat)
	if !errors.Is(err, registry.ErrUnknownIdentity) {
		t.Fatalf("want ErrUnknownIdentity, got %v", err)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 100 {
		t.Errorf("balance changed on rejected settlement: %d", balance.Quantity)
	}
	if seat.State() != escrow.StateRefunded {
		t.Errorf("seat state: got %s, want refunded", seat.State())
	}
}

func TestSettleConsultation_UnknownPatient(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RegisterDoctor("d1", &captureSink{})

	seat := consultationSeat("d1", "ghost", 20)
	_, err := h.engine.SettleConsultation(seat)
	if !errors.Is(err, registry.ErrUnknownIdentity) {
		t.Fatalf("want ErrUnknownIdentity, got %v", err)
	}
	if seat.State() != escrow.StateRefunded {
		t.Errorf("seat state: got %s, want refunded", seat.State())
	}
}

func TestSettlePurchase_FeeExceedsAmount(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RegisterSupplier("s1", &captureSink{})
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100))

	seat := purchaseSeat("s1", "p1", "aspirin", 3)
	_, err := h.engine.SettlePurchase(seat)
	if !errors.Is(err, engine.ErrFeeExceedsAmount) {
		t.Fatalf("want ErrFeeExceedsAmount, got %v", err)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 100 {
		t.Errorf("balance changed on fee rejection: %d", balance.Quantity)
	}
	if seat.State() != escrow.StateRefunded {
		t.Errorf("seat state: got %s, want refunded", seat.State())
	}
}

func TestSettleConsultation_InsufficientFunds(t *testing.T) {
	h := newHarness(t, 5)
	sink := &captureSink{}
	h.engine.RegisterDoctor("d1", sink)
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 10))

	seat := consultationSeat("d1", "p1", 20)
	_, err := h.engine.SettleConsultation(seat)
	if !errors.Is(err, registry.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 10 {
		t.Errorf("balance changed on insufficient funds: %d", balance.Quantity)
	}
	if seat.State() != escrow.StateRefunded {
		t.Errorf("seat state: got %s, want refunded", seat.State())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.insts) != 0 {
		t.Errorf("payout dispatched on failed settlement")
	}
}

func TestSettleConsultation_SameSeatTwice(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RegisterDoctor("d1", &captureSink{})
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100))

	seat := consultationSeat("d1", "p1", 20)
	if _, err := h.engine.SettleConsultation(seat); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}

	_, err := h.engine.SettleConsultation(seat)
	if !errors.Is(err, escrow.ErrSeatClosed) {
		t.Fatalf("want ErrSeatClosed on re-settle, got %v", err)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 80 {
		t.Errorf("second settle moved funds: balance %d, want 80", balance.Quantity)
	}
}

// ============================================================================
// Test: concurrency quota
// ============================================================================

func TestSettleConsultation_ConcurrentQuota(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RegisterDoctor("d1", &captureSink{})
	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100))

	const workers = 32
	const amount = 30 // 100/30 → exactly 3 can succeed

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seat := consultationSeat("d1", "p1", amount)
			if _, err := h.engine.SettleConsultation(seat); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("got %d successful settlements, want 3", successes)
	}

	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 10 {
		t.Errorf("final balance: got %d, want 10", balance.Quantity)
	}
}

// ============================================================================
// Test: registration through the engine
// ============================================================================

func TestRegisterPatient_Duplicate(t *testing.T) {
	h := newHarness(t, 5)

	if err := h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err := h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 999))
	if !errors.Is(err, registry.ErrDuplicateIdentity) {
		t.Fatalf("want ErrDuplicateIdentity, got %v", err)
	}

	// The original balance must survive the rejected re-registration.
	balance, _ := h.reg.PatientBalance("p1")
	if balance.Quantity != 100 {
		t.Errorf("balance overwritten: got %d, want 100", balance.Quantity)
	}
}

func TestRegisterPatient_EmitsFundingBatch(t *testing.T) {
	h := newHarness(t, 5)

	h.engine.RegisterPatient("p1", &captureSink{}, money.MustMake("Token", 100))

	out := h.lastOutput(t)
	if out.Envelope.EventType != event.EventTypePatientRegistered {
		t.Fatalf("event type: got %s", out.Envelope.EventType)
	}
	if out.Batch == nil || len(out.Batch.Journals) != 1 {
		t.Fatalf("expected one funding journal, got %+v", out.Batch)
	}
	if out.Batch.Journals[0].Amount != 100 {
		t.Errorf("funding amount: got %d, want 100", out.Batch.Journals[0].Amount)
	}
}
