package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CareLedger/internal/observability"
)

// Failure records a payout that could not be delivered after its settlement
// already committed. Settlements are never unwound for delivery problems;
// failures are reported out of band for operator reconciliation.
type Failure struct {
	Instruction Instruction `json:"instruction"`
	Reason      string      `json:"reason"`
	FailedAt    time.Time   `json:"failed_at"`
}

// FailureReporter receives payout failures for out-of-band handling.
type FailureReporter interface {
	ReportFailure(ctx context.Context, f Failure) error
}

// NATSFailureReporter publishes failures to care.payouts.failed.{role}.
type NATSFailureReporter struct {
	js jetstream.JetStream
}

func NewNATSFailureReporter(js jetstream.JetStream) *NATSFailureReporter {
	return &NATSFailureReporter{js: js}
}

func (r *NATSFailureReporter) ReportFailure(ctx context.Context, f Failure) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	subject := fmt.Sprintf("care.payouts.failed.%s", f.Instruction.Role)
	_, err = r.js.Publish(ctx, subject, data)
	return err
}

type job struct {
	sink Sink
	inst Instruction
}

// Dispatcher delivers payout instructions asynchronously. The settlement path
// enqueues and returns immediately; delivery happens on the Run goroutine so a
// slow or failing payee sink can never stall or unwind a settlement.
type Dispatcher struct {
	queue          chan job
	reporter       FailureReporter
	logger         zerolog.Logger
	metrics        *observability.Metrics
	deliverTimeout time.Duration
}

func NewDispatcher(
	queueSize int,
	reporter FailureReporter,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		queue:          make(chan job, queueSize),
		reporter:       reporter,
		logger:         logger,
		metrics:        metrics,
		deliverTimeout: 5 * time.Second,
	}
}

// Enqueue hands a payout instruction to the dispatcher. Non-blocking: if the
// queue is full the instruction is reported as failed rather than stalling
// the settlement path.
func (d *Dispatcher) Enqueue(sink Sink, inst Instruction) {
	select {
	case d.queue <- job{sink: sink, inst: inst}:
		if d.metrics != nil {
			d.metrics.PayoutsDispatched.WithLabelValues(inst.Role).Inc()
			d.metrics.SetChannelMetrics("payout_queue", len(d.queue), cap(d.queue))
		}
	default:
		if d.metrics != nil {
			d.metrics.PayoutQueueDrops.Inc()
		}
		d.reportFailure(context.Background(), inst, "dispatch queue full")
	}
}

// Run drains the queue until ctx is cancelled, then finishes any jobs still
// buffered so accepted payouts are not lost on shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()

		case j, ok := <-d.queue:
			if !ok {
				return nil
			}
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.deliver(context.Background(), j)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	start := time.Now()

	deliverCtx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	err := j.sink.Deliver(deliverCtx, j.inst)
	cancel()

	if d.metrics != nil {
		d.metrics.SetChannelMetrics("payout_queue", len(d.queue), cap(d.queue))
	}

	if err != nil {
		d.logger.Error().
			Err(err).
			Str("payout_id", j.inst.PayoutID.String()).
			Str("settlement_id", j.inst.SettlementID.String()).
			Str("role", j.inst.Role).
			Str("payee_id", j.inst.PayeeID).
			Msg("payout delivery failed")
		if d.metrics != nil {
			d.metrics.PayoutFailures.WithLabelValues(j.inst.Role).Inc()
		}
		d.reportFailure(ctx, j.inst, err.Error())
		return
	}

	if d.metrics != nil {
		d.metrics.PayoutsDelivered.WithLabelValues(j.inst.Role).Inc()
		d.metrics.PayoutDeliveryDur.WithLabelValues(j.inst.Role).Observe(time.Since(start).Seconds())
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, inst Instruction, reason string) {
	if d.reporter == nil {
		return
	}
	f := Failure{Instruction: inst, Reason: reason, FailedAt: time.Now().UTC()}
	if err := d.reporter.ReportFailure(ctx, f); err != nil {
		d.logger.Error().
			Err(err).
			Str("payout_id", inst.PayoutID.String()).
			Msg("failure report publish failed")
	}
}
