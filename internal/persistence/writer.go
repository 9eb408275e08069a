package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SettlementWriter writes settlement records and journal entries to Postgres
// using multi-row INSERT. ON CONFLICT DO NOTHING keeps replayed batches
// idempotent.
type SettlementWriter struct {
	db *sql.DB
}

// SettlementRow represents a row in care.settlements.
type SettlementRow struct {
	SettlementID string
	Flow         string
	PatientID    string
	PayeeRole    string
	PayeeID      string
	MedicineID   *string
	Unit         string
	GrossAmount  int64
	FeeAmount    int64
	NetAmount    int64
	Sequence     int64
	SettledAt    time.Time
}

// JournalRow represents a row in care.journal.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Unit          string
	Amount        int64
	JournalType   int32
	Timestamp     int64
}

func NewSettlementWriter(db *sql.DB) *SettlementWriter {
	return &SettlementWriter{db: db}
}

// WriteSettlementBatch inserts settlement rows inside the given transaction.
func (w *SettlementWriter) WriteSettlementBatch(ctx context.Context, tx *sql.Tx, rows []SettlementRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO care.settlements
		(settlement_id, flow, patient_id, payee_role, payee_id, medicine_id, unit, gross_amount, fee_amount, net_amount, sequence, settled_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*12)

	for i, r := range rows {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11, base+12,
		))
		args = append(args,
			r.SettlementID, r.Flow, r.PatientID, r.PayeeRole, r.PayeeID,
			r.MedicineID, r.Unit, r.GrossAmount, r.FeeAmount, r.NetAmount,
			r.Sequence, r.SettledAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (settlement_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts journal rows inside the given transaction.
func (w *SettlementWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO care.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, unit, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)

	for i, j := range rows {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Unit, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
