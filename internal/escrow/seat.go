package escrow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"CareLedger/internal/money"
)

// Keyword names the escrowed allocation on a seat.
type Keyword string

const (
	KeywordFee   Keyword = "Fee"   // consultation settlements
	KeywordPrice Keyword = "Price" // purchase settlements
)

// State is the seat lifecycle position.
// Transitions: Open → Committed → {Finalized, Refunded}; Open → Refunded.
type State int32

const (
	StateOpen State = iota
	StateCommitted
	StateFinalized
	StateRefunded
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateFinalized:
		return "finalized"
	case StateRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

var (
	// ErrSeatClosed is returned by transitions on a finalized or refunded seat.
	ErrSeatClosed = errors.New("escrow: seat already closed")

	// ErrSeatNotFunded is returned when finalize is attempted before commit,
	// or commit is attempted twice.
	ErrSeatNotFunded = errors.New("escrow: seat has no committed funds")

	// ErrKeywordMismatch is returned when the requested allocation keyword
	// does not match the funded keyword.
	ErrKeywordMismatch = errors.New("escrow: allocation keyword mismatch")
)

// Payload is the caller-supplied custom payload carried by a seat. Only the
// fields relevant to the requested flow are set.
type Payload struct {
	DoctorID   string `json:"doctor_id,omitempty"`
	SupplierID string `json:"supplier_id,omitempty"`
	PatientID  string `json:"patient_id"`
	MedicineID string `json:"medicine_id,omitempty"`
}

// Seat is a funded, in-flight settlement proposal. Funds committed under the
// keyword are held in escrow until the seat is finalized (released to the
// engine) or refunded (returned to the proposer). A seat closes exactly once.
type Seat struct {
	mu      sync.Mutex
	id      uuid.UUID
	payload Payload
	keyword Keyword
	amount  money.Amount
	state   State
}

// NewSeat creates an open, unfunded seat.
func NewSeat(payload Payload) *Seat {
	return &Seat{
		id:      uuid.New(),
		payload: payload,
		state:   StateOpen,
	}
}

// NewFundedSeat creates a seat and commits funds in one step. This is the
// path the HTTP boundary uses: the request arrives already funded.
func NewFundedSeat(payload Payload, keyword Keyword, amount money.Amount) *Seat {
	s := NewSeat(payload)
	s.keyword = keyword
	s.amount = amount
	s.state = StateCommitted
	return s
}

func (s *Seat) ID() uuid.UUID {
	return s.id
}

func (s *Seat) Payload() Payload {
	return s.payload
}

func (s *Seat) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Commit moves funds into escrow under the keyword. Valid only from Open.
func (s *Seat) Commit(keyword Keyword, amount money.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateOpen:
	case StateCommitted:
		return fmt.Errorf("escrow: seat %s already committed", s.id)
	default:
		return fmt.Errorf("%w: seat %s is %s", ErrSeatClosed, s.id, s.state)
	}

	s.keyword = keyword
	s.amount = amount
	s.state = StateCommitted
	return nil
}

// AmountAllocated returns the amount committed under the given keyword.
// Valid only while the seat is committed: once a seat is finalized or
// refunded its allocation is gone, so a closed seat can never be settled
// again.
func (s *Seat) AmountAllocated(keyword Keyword) (money.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCommitted:
	case StateOpen:
		return money.Amount{}, fmt.Errorf("%w: seat %s", ErrSeatNotFunded, s.id)
	default:
		return money.Amount{}, fmt.Errorf("%w: seat %s is %s", ErrSeatClosed, s.id, s.state)
	}
	if s.keyword != keyword {
		return money.Amount{}, fmt.Errorf("%w: funded under %q, asked for %q",
			ErrKeywordMismatch, s.keyword, keyword)
	}
	return s.amount, nil
}

// Finalize releases the escrowed funds to the settlement engine. Valid only
// from Committed; terminal.
func (s *Seat) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCommitted:
		s.state = StateFinalized
		return nil
	case StateOpen:
		return fmt.Errorf("%w: seat %s", ErrSeatNotFunded, s.id)
	default:
		return fmt.Errorf("%w: seat %s is %s", ErrSeatClosed, s.id, s.state)
	}
}

// Refund returns any committed funds to the proposer. Valid from Open and
// Committed; terminal.
func (s *Seat) Refund() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateOpen, StateCommitted:
		s.state = StateRefunded
		return nil
	default:
		return fmt.Errorf("%w: seat %s is %s", ErrSeatClosed, s.id, s.state)
	}
}
