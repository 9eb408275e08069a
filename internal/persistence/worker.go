package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"CareLedger/internal/engine"
	"CareLedger/internal/event"
	"CareLedger/internal/observability"
)

// Worker drains the engine output channel and batch-writes to Postgres.
// The engine uses BLOCKING sends into the channel, so if this worker falls
// behind, settlements stall rather than losing audit records.
type Worker struct {
	writer       *SettlementWriter
	db           *sql.DB
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewSettlementWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the worker loop. It batches incoming outputs and flushes either
// when the batch is full or the flush timeout expires. Blocks until ctx is
// cancelled, then flushes whatever is buffered.
func (w *Worker) Run(ctx context.Context) error {
	settlementBatch := make([]SettlementRow, 0, w.batchSize)
	journalBatch := make([]JournalRow, 0, w.batchSize*3)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(settlementBatch) > 0 || len(journalBatch) > 0 {
				if err := w.flush(context.Background(), settlementBatch, journalBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				if len(settlementBatch) > 0 || len(journalBatch) > 0 {
					if err := w.flush(context.Background(), settlementBatch, journalBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			if row, ok := settlementRowFromOutput(output); ok {
				settlementBatch = append(settlementBatch, row)
			}
			journalBatch = append(journalBatch, journalRowsFromOutput(output)...)

			if len(settlementBatch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, settlementBatch, journalBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				settlementBatch = settlementBatch[:0]
				journalBatch = journalBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(settlementBatch) > 0 || len(journalBatch) > 0 {
				if err := w.flushWithRetry(ctx, settlementBatch, journalBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				settlementBatch = settlementBatch[:0]
				journalBatch = journalBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// settlementRowFromOutput builds a settlement row from a settled-event
// envelope. Registration envelopes produce no settlement row; their funding
// journals still flow through journalRowsFromOutput.
func settlementRowFromOutput(output engine.Output) (SettlementRow, bool) {
	env := output.Envelope
	if env == nil {
		return SettlementRow{}, false
	}

	switch env.EventType {
	case event.EventTypeConsultationSettled:
		var evt event.ConsultationSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			log.Printf("WARN: undecodable consultation payload seq=%d: %v", env.Sequence, err)
			return SettlementRow{}, false
		}
		return SettlementRow{
			SettlementID: evt.SettlementID.String(),
			Flow:         "consultation",
			PatientID:    evt.PatientID,
			PayeeRole:    "doctor",
			PayeeID:      evt.DoctorID,
			Unit:         evt.Unit,
			GrossAmount:  evt.GrossAmount,
			FeeAmount:    evt.FeeAmount,
			NetAmount:    evt.NetAmount,
			Sequence:     env.Sequence,
			SettledAt:    env.Timestamp,
		}, true

	case event.EventTypePurchaseSettled:
		var evt event.PurchaseSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			log.Printf("WARN: undecodable purchase payload seq=%d: %v", env.Sequence, err)
			return SettlementRow{}, false
		}
		medicineID := evt.MedicineID
		return SettlementRow{
			SettlementID: evt.SettlementID.String(),
			Flow:         "purchase",
			PatientID:    evt.PatientID,
			PayeeRole:    "supplier",
			PayeeID:      evt.SupplierID,
			MedicineID:   &medicineID,
			Unit:         evt.Unit,
			GrossAmount:  evt.GrossAmount,
			FeeAmount:    evt.FeeAmount,
			NetAmount:    evt.NetAmount,
			Sequence:     env.Sequence,
			SettledAt:    env.Timestamp,
		}, true

	default:
		return SettlementRow{}, false
	}
}

func journalRowsFromOutput(output engine.Output) []JournalRow {
	if output.Batch == nil {
		return nil
	}

	rows := make([]JournalRow, 0, len(output.Batch.Journals))
	for _, j := range output.Batch.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Unit:          j.Unit,
			Amount:        j.Amount,
			JournalType:   int32(j.JournalType),
			Timestamp:     j.Timestamp,
		})
	}
	return rows
}

// flushWithRetry attempts to flush with exponential backoff. The worker never
// drops a batch: it retries until the write succeeds or ctx is cancelled, in
// which case it makes one final attempt with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, settlements []SettlementRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, settlements=%d)",
				attempt, backoff, len(settlements))
			select {
			case <-ctx.Done():
				finalErr := w.flush(context.Background(), settlements, journals)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, settlements, journals)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistRetry.Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, settlements []SettlementRow, journals []JournalRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteSettlementBatch(ctx, tx, settlements); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_settlements").Inc()
		}
		return err
	}

	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(settlements)))
		w.metrics.PersistSettlementsWritten.Add(float64(len(settlements)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
	}

	return nil
}
