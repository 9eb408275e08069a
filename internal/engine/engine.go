package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CareLedger/internal/escrow"
	"CareLedger/internal/event"
	"CareLedger/internal/ledger"
	"CareLedger/internal/money"
	"CareLedger/internal/observability"
	"CareLedger/internal/payout"
	"CareLedger/internal/registry"
)

// ErrFeeExceedsAmount is returned when the settlement amount does not cover
// the platform fee. Checked before the debit: a proposal that cannot pay the
// fee never moves funds.
var ErrFeeExceedsAmount = errors.New("engine: platform fee exceeds settlement amount")

// Output is one committed operation headed for the persistence worker: the
// audit envelope plus the journal batch it produced (nil for registrations of
// doctors and suppliers, which move no funds).
type Output struct {
	Envelope *event.Envelope
	Batch    *ledger.Batch
}

// SettlementEngine executes fee-deducting settlements against the registry
// and records every committed operation as a double-entry journal batch.
//
// The registry handles per-patient debit atomicity; the engine's own mutex
// serializes only the bookkeeping tail (sequence assignment, journal apply,
// persist emission), so concurrent settlements contend on the patient lock
// and not on each other.
type SettlementEngine struct {
	platformFee money.Amount
	registry    *registry.Registry
	dispatcher  *payout.Dispatcher
	logger      zerolog.Logger
	metrics     *observability.Metrics

	mu          sync.Mutex
	sequence    int64
	journalGen  *ledger.JournalGenerator
	balances    *ledger.BalanceTracker
	validator   *ledger.InvariantValidator
	persistChan chan<- Output
}

func NewSettlementEngine(
	platformFee money.Amount,
	reg *registry.Registry,
	dispatcher *payout.Dispatcher,
	persistChan chan<- Output,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *SettlementEngine {
	balances := ledger.NewBalanceTracker()
	return &SettlementEngine{
		platformFee: platformFee,
		registry:    reg,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     metrics,
		journalGen:  ledger.NewJournalGenerator(0),
		balances:    balances,
		validator:   ledger.NewInvariantValidator(balances),
		persistChan: persistChan,
	}
}

// PlatformFee returns the configured flat fee.
func (e *SettlementEngine) PlatformFee() money.Amount {
	return e.platformFee
}

// RegisterDoctor adds a doctor identity and records the registration event.
func (e *SettlementEngine) RegisterDoctor(id string, sink payout.Sink) error {
	if err := e.registry.RegisterDoctor(id, sink); err != nil {
		if e.metrics != nil && errors.Is(err, registry.ErrDuplicateIdentity) {
			e.metrics.RegistrationDuplicates.WithLabelValues(string(registry.RoleDoctor)).Inc()
		}
		return err
	}

	e.emitRegistration(&event.DoctorRegistered{DoctorID: id}, nil)

	if e.metrics != nil {
		e.metrics.Registrations.WithLabelValues(string(registry.RoleDoctor)).Inc()
	}
	e.logger.Info().Str("doctor_id", id).Msg("doctor registered")
	return nil
}

// RegisterSupplier adds a supplier identity and records the registration event.
func (e *SettlementEngine) RegisterSupplier(id string, sink payout.Sink) error {
	if err := e.registry.RegisterSupplier(id, sink); err != nil {
		if e.metrics != nil && errors.Is(err, registry.ErrDuplicateIdentity) {
			e.metrics.RegistrationDuplicates.WithLabelValues(string(registry.RoleSupplier)).Inc()
		}
		return err
	}

	e.emitRegistration(&event.SupplierRegistered{SupplierID: id}, nil)

	if e.metrics != nil {
		e.metrics.Registrations.WithLabelValues(string(registry.RoleSupplier)).Inc()
	}
	e.logger.Info().Str("supplier_id", id).Msg("supplier registered")
	return nil
}

// RegisterPatient adds a patient identity with an initial balance. The
// balance enters the ledger as a funding batch (external → patient).
func (e *SettlementEngine) RegisterPatient(id string, sink payout.Sink, initialBalance money.Amount) error {
	if err := e.registry.RegisterPatient(id, sink, initialBalance); err != nil {
		if e.metrics != nil && errors.Is(err, registry.ErrDuplicateIdentity) {
			e.metrics.RegistrationDuplicates.WithLabelValues(string(registry.RolePatient)).Inc()
		}
		return err
	}

	now := time.Now().UTC()

	e.mu.Lock()
	batch, err := e.journalGen.GeneratePatientFunding(id, initialBalance.Unit, initialBalance.Quantity, now.UnixMicro())
	if err == nil && batch != nil {
		if applyErr := e.balances.ApplyBatch(batch); applyErr != nil {
			err = applyErr
		}
	}
	e.mu.Unlock()

	if err != nil {
		// Registry insert already succeeded; the audit ledger is out of sync.
		// This only happens on a negative balance, which Make() prevents
		// upstream, so treat it as fatal configuration breakage.
		e.logger.Error().Err(err).Str("patient_id", id).Msg("patient funding batch failed")
		return err
	}

	e.emitRegistration(&event.PatientRegistered{
		PatientID:      id,
		Unit:           initialBalance.Unit,
		InitialBalance: initialBalance.Quantity,
	}, batch)

	if e.metrics != nil {
		e.metrics.Registrations.WithLabelValues(string(registry.RolePatient)).Inc()
	}
	e.logger.Info().
		Str("patient_id", id).
		Str("initial_balance", initialBalance.String()).
		Msg("patient registered")
	return nil
}

// SettleConsultation settles a consultation seat funded under the Fee
// keyword: the patient pays the gross amount, the doctor receives the net
// after the flat platform fee.
//
// Failure order is fixed: seat allocation, doctor lookup, patient lookup,
// fee check, funds check. Any failure before Finalize refunds the seat and
// leaves all balances untouched.
func (e *SettlementEngine) SettleConsultation(seat *escrow.Seat) (*Receipt, error) {
	start := time.Now()
	payload := seat.Payload()

	amount, err := seat.AmountAllocated(escrow.KeywordFee)
	if err != nil {
		return nil, e.reject(seat, "consultation", "not_funded", err)
	}

	doctor, err := e.registry.LookupDoctor(payload.DoctorID)
	if err != nil {
		return nil, e.reject(seat, "consultation", "unknown_identity", err)
	}

	if _, err := e.registry.LookupPatient(payload.PatientID); err != nil {
		return nil, e.reject(seat, "consultation", "unknown_identity", err)
	}

	net, err := e.computeNet(amount)
	if err != nil {
		return nil, e.reject(seat, "consultation", "fee_exceeds_amount", err)
	}

	newBalance, err := e.registry.DebitPatient(payload.PatientID, amount)
	if err != nil {
		if e.metrics != nil && errors.Is(err, registry.ErrInsufficientFunds) {
			e.metrics.DebitFailures.WithLabelValues("consultation").Inc()
		}
		return nil, e.reject(seat, "consultation", "insufficient_funds", err)
	}

	// The debit is committed; from here the settlement must complete.
	if err := seat.Finalize(); err != nil {
		// Unreachable for a committed seat settled once. A second concurrent
		// settle of the same seat loses the Finalize race and must not debit
		// twice, which the state machine prevents before this point.
		e.logger.Error().Err(err).Str("seat_id", seat.ID().String()).Msg("finalize after debit failed")
		return nil, err
	}

	evt := &event.ConsultationSettled{
		SettlementID: seat.ID(),
		DoctorID:     payload.DoctorID,
		PatientID:    payload.PatientID,
		Unit:         amount.Unit,
		GrossAmount:  amount.Quantity,
		FeeAmount:    e.platformFee.Quantity,
		NetAmount:    net.Quantity,
	}
	e.record(seat, payload.PatientID, ledger.NewDoctorAccountKey(payload.DoctorID), amount, evt)

	e.dispatchPayout(seat, string(registry.RoleDoctor), payload.DoctorID, doctor.Sink, net)

	if e.metrics != nil {
		e.metrics.SettlementsTotal.WithLabelValues("consultation", "settled").Inc()
		e.metrics.SettlementDuration.WithLabelValues("consultation").Observe(time.Since(start).Seconds())
	}
	e.logger.Info().
		Str("settlement_id", seat.ID().String()).
		Str("doctor_id", payload.DoctorID).
		Str("patient_id", payload.PatientID).
		Str("gross", amount.String()).
		Str("net", net.String()).
		Str("patient_balance", newBalance.String()).
		Msg("consultation settled")

	return &Receipt{
		SettlementID:   seat.ID(),
		Message:        fmt.Sprintf("consultation fee of %s received; doctor %s will be paid %s", amount, payload.DoctorID, net),
		ValidForMillis: ReceiptValidForMillis,
	}, nil
}

// SettlePurchase settles a purchase seat funded under the Price keyword: the
// patient pays the price, the supplier receives the net after the flat
// platform fee. Purchase receipts carry no validity window.
func (e *SettlementEngine) SettlePurchase(seat *escrow.Seat) (*Receipt, error) {
	start := time.Now()
	payload := seat.Payload()

	amount, err := seat.AmountAllocated(escrow.KeywordPrice)
	if err != nil {
		return nil, e.reject(seat, "purchase", "not_funded", err)
	}

	supplier, err := e.registry.LookupSupplier(payload.SupplierID)
	if err != nil {
		return nil, e.reject(seat, "purchase", "unknown_identity", err)
	}

	if _, err := e.registry.LookupPatient(payload.PatientID); err != nil {
		return nil, e.reject(seat, "purchase", "unknown_identity", err)
	}

	net, err := e.computeNet(amount)
	if err != nil {
		return nil, e.reject(seat, "purchase", "fee_exceeds_amount", err)
	}

	newBalance, err := e.registry.DebitPatient(payload.PatientID, amount)
	if err != nil {
		if e.metrics != nil && errors.Is(err, registry.ErrInsufficientFunds) {
			e.metrics.DebitFailures.WithLabelValues("purchase").Inc()
		}
		return nil, e.reject(seat, "purchase", "insufficient_funds", err)
	}

	if err := seat.Finalize(); err != nil {
		e.logger.Error().Err(err).Str("seat_id", seat.ID().String()).Msg("finalize after debit failed")
		return nil, err
	}

	evt := &event.PurchaseSettled{
		SettlementID: seat.ID(),
		SupplierID:   payload.SupplierID,
		PatientID:    payload.PatientID,
		MedicineID:   payload.MedicineID,
		Unit:         amount.Unit,
		GrossAmount:  amount.Quantity,
		FeeAmount:    e.platformFee.Quantity,
		NetAmount:    net.Quantity,
	}
	e.record(seat, payload.PatientID, ledger.NewSupplierAccountKey(payload.SupplierID), amount, evt)

	e.dispatchPayout(seat, string(registry.RoleSupplier), payload.SupplierID, supplier.Sink, net)

	if e.metrics != nil {
		e.metrics.SettlementsTotal.WithLabelValues("purchase", "settled").Inc()
		e.metrics.SettlementDuration.WithLabelValues("purchase").Observe(time.Since(start).Seconds())
	}
	e.logger.Info().
		Str("settlement_id", seat.ID().String()).
		Str("supplier_id", payload.SupplierID).
		Str("patient_id", payload.PatientID).
		Str("medicine_id", payload.MedicineID).
		Str("gross", amount.String()).
		Str("net", net.String()).
		Str("patient_balance", newBalance.String()).
		Msg("purchase settled")

	return &Receipt{
		SettlementID: seat.ID(),
		Message:      fmt.Sprintf("payment of %s for %s received; supplier %s will be paid %s", amount, payload.MedicineID, payload.SupplierID, net),
	}, nil
}

// computeNet subtracts the flat platform fee. A unit mismatch between the
// settlement amount and the configured fee also fails here, before any funds
// move.
func (e *SettlementEngine) computeNet(amount money.Amount) (money.Amount, error) {
	net, err := money.Subtract(amount, e.platformFee)
	if err != nil {
		if e.metrics != nil {
			e.metrics.FeeRejections.Inc()
		}
		return money.Amount{}, fmt.Errorf("%w: amount %s, fee %s", ErrFeeExceedsAmount, amount, e.platformFee)
	}
	return net, nil
}

// reject refunds the seat and returns the causing error unchanged.
func (e *SettlementEngine) reject(seat *escrow.Seat, flow, outcome string, cause error) error {
	if err := seat.Refund(); err != nil {
		e.logger.Warn().Err(err).Str("seat_id", seat.ID().String()).Msg("refund on rejected settlement failed")
	}
	if e.metrics != nil {
		e.metrics.SettlementsTotal.WithLabelValues(flow, outcome).Inc()
	}
	e.logger.Warn().
		Err(cause).
		Str("seat_id", seat.ID().String()).
		Str("flow", flow).
		Str("outcome", outcome).
		Msg("settlement rejected")
	return cause
}

// record generates and applies the journal batch for a committed settlement
// and emits the audit output. The engine mutex serializes this tail.
func (e *SettlementEngine) record(seat *escrow.Seat, patientID string, payee ledger.AccountKey, gross money.Amount, evt event.Event) {
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.journalGen.GenerateSettlement(
		seat.ID(), patientID, payee, gross.Unit,
		gross.Quantity, e.platformFee.Quantity, now.UnixMicro(),
	)
	if err != nil {
		// The fee check already bounded fee <= gross; only a zero gross can
		// land here and that indicates a funded seat with an empty amount.
		e.logger.Error().Err(err).Str("settlement_id", seat.ID().String()).Msg("journal generation failed")
		return
	}

	if err := e.validator.ValidateBatchBalance(batch); err != nil {
		panic(fmt.Sprintf("FATAL: unbalanced settlement batch: %v", err))
	}
	if err := e.balances.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: settlement batch rejected by tracker: %v", err))
	}
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		panic(fmt.Sprintf("FATAL: ledger no longer zero-sum: %v", err))
	}

	e.emitLocked(evt, batch, now)
}

// emitRegistration wraps a registration event in an envelope and sends it to
// the persistence worker.
func (e *SettlementEngine) emitRegistration(evt event.Event, batch *ledger.Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(evt, batch, time.Now().UTC())
}

// emitLocked assigns the next sequence and emits. Caller holds e.mu.
// The persist send is blocking: backpressure from the persistence worker
// stalls the engine rather than dropping audit records.
func (e *SettlementEngine) emitLocked(evt event.Event, batch *ledger.Batch, ts time.Time) {
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", evt.EventType().String()).Msg("event marshal failed")
		return
	}

	envelope := &event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Timestamp:      ts,
		Payload:        payload,
	}
	e.sequence++

	if e.metrics != nil {
		e.metrics.SettlementSequence.Set(float64(e.sequence))
	}

	if e.persistChan != nil {
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- Output{Envelope: envelope, Batch: batch}
	}
}

// dispatchPayout hands the net amount to the async dispatcher. Fire and
// forget: a delivery failure is reported out of band and never unwinds the
// settlement.
func (e *SettlementEngine) dispatchPayout(seat *escrow.Seat, role, payeeID string, sink payout.Sink, net money.Amount) {
	if net.IsZero() || e.dispatcher == nil {
		return
	}
	e.dispatcher.Enqueue(sink, payout.Instruction{
		PayoutID:     uuid.New(),
		SettlementID: seat.ID(),
		Role:         role,
		PayeeID:      payeeID,
		Amount:       net,
		Timestamp:    time.Now().UTC(),
	})
}

// LedgerSnapshot exposes a copy of the audit balances for the stats surface.
func (e *SettlementEngine) LedgerSnapshot() map[ledger.AccountKey]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances.Snapshot()
}
