package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for settlement
// operations. Sequence numbers are assigned here and are strictly monotonic;
// the generator is driven only by the single settlement goroutine path, so
// it needs no locking of its own.
type JournalGenerator struct {
	sequence int64
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{sequence: startSequence}
}

// Sequence returns the next sequence number to be assigned.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// GeneratePatientFunding records a patient's initial balance entering the
// system at registration. Moves funds: external:funding → patient:balance.
// A zero initial balance produces no batch.
func (jg *JournalGenerator) GeneratePatientFunding(
	patientID string,
	unit string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if amount < 0 {
		return nil, fmt.Errorf("funding amount must be non-negative: %d", amount)
	}
	if amount == 0 {
		return nil, nil
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  fmt.Sprintf("funding:%s", patientID),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      fmt.Sprintf("funding:%s", patientID),
				Sequence:      jg.sequence,
				DebitAccount:  NewPatientAccountKey(patientID),
				CreditAccount: NewExternalAccountKey(),
				Unit:          unit,
				Amount:        amount,
				JournalType:   JournalTypePatientFunding,
				Timestamp:     timestamp,
			},
		},
	}

	jg.sequence++
	return batch, nil
}

// GenerateSettlement creates the journal batch for one fee-deducting
// settlement: the gross amount leaves the patient's balance into platform
// escrow, the net amount moves on to the payee's receivable, and the fee
// accrues on the platform fees account. gross must be >= fee.
func (jg *JournalGenerator) GenerateSettlement(
	settlementID uuid.UUID,
	patientID string,
	payee AccountKey,
	unit string,
	gross, fee int64,
	timestamp int64,
) (*Batch, error) {
	if gross <= 0 {
		return nil, fmt.Errorf("gross amount must be positive: %d", gross)
	}
	if fee < 0 || fee > gross {
		return nil, fmt.Errorf("fee %d out of range for gross %d", fee, gross)
	}

	net := gross - fee
	eventRef := settlementID.String()
	batchID := uuid.New()
	escrow := NewPlatformAccountKey(SubTypeEscrow)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 3),
	}

	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  escrow,
		CreditAccount: NewPatientAccountKey(patientID),
		Unit:          unit,
		Amount:        gross,
		JournalType:   JournalTypeEscrowRelease,
		Timestamp:     timestamp,
	})

	if net > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  payee,
			CreditAccount: escrow,
			Unit:          unit,
			Amount:        net,
			JournalType:   JournalTypePayout,
			Timestamp:     timestamp,
		})
	}

	if fee > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewPlatformAccountKey(SubTypeFees),
			CreditAccount: escrow,
			Unit:          unit,
			Amount:        fee,
			JournalType:   JournalTypePlatformFee,
			Timestamp:     timestamp,
		})
	}

	jg.sequence++
	return batch, nil
}
