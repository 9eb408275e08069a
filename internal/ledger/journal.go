package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry.
type JournalType int32

const (
	JournalTypePatientFunding JournalType = iota // initial balance at registration
	JournalTypeEscrowRelease                     // patient balance → platform escrow
	JournalTypePayout                            // platform escrow → payee receivable
	JournalTypePlatformFee                       // platform escrow → platform fees
)

// Journal is a single double-entry journal entry. A positive amount moves
// from the credit account to the debit account, so each entry is balanced by
// construction.
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID   // groups the entries of one settlement
	EventRef      string      // seat/settlement id of the source operation
	Sequence      int64       // global settlement sequence
	DebitAccount  AccountKey  // balance increases
	CreditAccount AccountKey  // balance decreases
	Unit          string      // settlement unit (brand)
	Amount        int64       // always positive
	JournalType   JournalType
	Timestamp     int64       // epoch microseconds
}

// Batch is the balanced set of journal entries produced by one operation.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed: non-empty, positive amounts,
// consistent batch ids, no self-transfers.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
