package payout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"CareLedger/internal/money"
)

// Instruction is a single payout to be delivered to a payee's endpoint.
// The amount is the net amount after platform fee deduction.
type Instruction struct {
	PayoutID     uuid.UUID    `json:"payout_id"`
	SettlementID uuid.UUID    `json:"settlement_id"`
	Role         string       `json:"role"` // "doctor" or "supplier"
	PayeeID      string       `json:"payee_id"`
	Amount       money.Amount `json:"amount"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Sink is the opaque payout endpoint capability. Implementations carry the
// transport; the engine only ever calls Deliver. Delivery failure after a
// committed debit is the one partial-failure state the design accepts, so
// Deliver errors must be surfaced by the caller, never swallowed.
type Sink interface {
	Deliver(ctx context.Context, inst Instruction) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, inst Instruction) error

func (f SinkFunc) Deliver(ctx context.Context, inst Instruction) error {
	return f(ctx, inst)
}
