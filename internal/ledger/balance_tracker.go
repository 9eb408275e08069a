package ledger

import "fmt"

// BalanceTracker maintains in-memory ledger account balances. It is the
// audit view of settlements, not the authoritative patient balance — that
// lives in the registry. The two agree because every registry mutation is
// mirrored by exactly one journal batch.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances.
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch validates and applies all journals in a batch.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account.
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// PatientBalance returns the audited balance for a patient.
func (bt *BalanceTracker) PatientBalance(patientID string) int64 {
	return bt.GetBalance(NewPatientAccountKey(patientID))
}

// PayeeReceivable returns the accumulated net payouts owed to a payee.
func (bt *BalanceTracker) PayeeReceivable(key AccountKey) int64 {
	return bt.GetBalance(key)
}

// FeesAccrued returns the total platform fees collected.
func (bt *BalanceTracker) FeesAccrued() int64 {
	return bt.GetBalance(NewPlatformAccountKey(SubTypeFees))
}

// ComputeGlobalBalance sums all account balances; zero for a zero-sum ledger.
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// ValidateNonNegative checks that a specific account balance is >= 0.
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances.
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
