package registry

import (
	"fmt"
	"sync"

	"CareLedger/internal/money"
	"CareLedger/internal/payout"
)

// Doctor is a registered service provider. Immutable after registration.
type Doctor struct {
	ID   string
	Sink payout.Sink
}

// Supplier is a registered goods provider. Immutable after registration.
type Supplier struct {
	ID   string
	Sink payout.Sink
}

// Patient is a registered payer. Balance is the only mutable field and is
// mutated exclusively through DebitPatient.
type Patient struct {
	ID      string
	Sink    payout.Sink
	Balance money.Amount
}

// patientRecord guards the live balance with its own mutex so that debits
// against one patient serialize without blocking debits against others.
type patientRecord struct {
	mu      sync.Mutex
	sink    payout.Sink
	balance money.Amount
}

// Registry owns all registered-identity state: doctor and supplier payout
// endpoints, and patient endpoints with balances. Ids are unique within
// their namespace; there is no deregistration.
type Registry struct {
	mu        sync.RWMutex
	doctors   map[string]*Doctor
	suppliers map[string]*Supplier
	patients  map[string]*patientRecord
}

func New() *Registry {
	return &Registry{
		doctors:   make(map[string]*Doctor),
		suppliers: make(map[string]*Supplier),
		patients:  make(map[string]*patientRecord),
	}
}

// RegisterDoctor inserts a doctor record. Fails with ErrDuplicateIdentity if
// the id is already present; the existing record is never overwritten.
func (r *Registry) RegisterDoctor(id string, sink payout.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[id]; ok {
		return fmt.Errorf("%w: doctor %q", ErrDuplicateIdentity, id)
	}
	r.doctors[id] = &Doctor{ID: id, Sink: sink}
	return nil
}

// RegisterSupplier inserts a supplier record under the supplier namespace.
func (r *Registry) RegisterSupplier(id string, sink payout.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.suppliers[id]; ok {
		return fmt.Errorf("%w: supplier %q", ErrDuplicateIdentity, id)
	}
	r.suppliers[id] = &Supplier{ID: id, Sink: sink}
	return nil
}

// RegisterPatient inserts a patient record with an initial balance.
func (r *Registry) RegisterPatient(id string, sink payout.Sink, initialBalance money.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[id]; ok {
		return fmt.Errorf("%w: patient %q", ErrDuplicateIdentity, id)
	}
	r.patients[id] = &patientRecord{sink: sink, balance: initialBalance}
	return nil
}

// LookupDoctor returns the stored doctor record.
func (r *Registry) LookupDoctor(id string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, fmt.Errorf("%w: doctor %q", ErrUnknownIdentity, id)
	}
	return d, nil
}

// LookupSupplier returns the stored supplier record.
func (r *Registry) LookupSupplier(id string) (*Supplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("%w: supplier %q", ErrUnknownIdentity, id)
	}
	return s, nil
}

// LookupPatient returns a point-in-time view of the stored patient record.
// The returned balance may be stale the moment it is read; settlement code
// must use DebitPatient, never a lookup-then-mutate sequence.
func (r *Registry) LookupPatient(id string) (*Patient, error) {
	rec, err := r.patientRecord(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return &Patient{ID: id, Sink: rec.sink, Balance: rec.balance}, nil
}

// DebitPatient atomically checks sufficiency and deducts amount from the
// patient's balance, returning the updated balance. This is the single
// mutation point for patient state: the check and the deduct hold the
// patient's lock together, so no concurrent debit can observe a stale
// balance. Debits against different patients do not contend.
func (r *Registry) DebitPatient(id string, amount money.Amount) (money.Amount, error) {
	rec, err := r.patientRecord(id)
	if err != nil {
		return money.Amount{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !money.IsGTE(rec.balance, amount) {
		return money.Amount{}, fmt.Errorf("%w: patient %q has %s, need %s",
			ErrInsufficientFunds, id, rec.balance, amount)
	}

	newBalance, err := money.Subtract(rec.balance, amount)
	if err != nil {
		// Unreachable after the IsGTE check unless units diverge.
		return money.Amount{}, err
	}

	rec.balance = newBalance
	return newBalance, nil
}

// PatientBalance returns the patient's current balance.
func (r *Registry) PatientBalance(id string) (money.Amount, error) {
	rec, err := r.patientRecord(id)
	if err != nil {
		return money.Amount{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.balance, nil
}

// Counts returns the number of registered identities per namespace.
func (r *Registry) Counts() (doctors, suppliers, patients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.doctors), len(r.suppliers), len(r.patients)
}

func (r *Registry) patientRecord(id string) (*patientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: patient %q", ErrUnknownIdentity, id)
	}
	return rec, nil
}
