package ledger

import "fmt"

// InvariantValidator checks settlement-ledger invariants.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{tracker: tracker}
}

// ValidateBatchBalance verifies a batch is well-formed before it is applied.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidatePatientNonNegative checks a patient's audited balance is >= 0.
func (v *InvariantValidator) ValidatePatientNonNegative(patientID string) error {
	return v.tracker.ValidateNonNegative(NewPatientAccountKey(patientID))
}

// ValidateEscrowCleared verifies the platform escrow account returns to zero
// after a settlement batch: everything released from the patient must have
// moved on to the payee and the fees account.
func (v *InvariantValidator) ValidateEscrowCleared() error {
	balance := v.tracker.GetBalance(NewPlatformAccountKey(SubTypeEscrow))
	if balance != 0 {
		return fmt.Errorf("platform escrow has non-zero balance: %d", balance)
	}
	return nil
}

// ValidateGlobalBalance verifies the ledger is zero-sum.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}
