package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CareLedger.
type Metrics struct {
	// --- Registry ---
	Registrations          *prometheus.CounterVec
	RegistrationDuplicates *prometheus.CounterVec

	// --- Settlement ---
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	DebitFailures      *prometheus.CounterVec
	FeeRejections      prometheus.Counter
	SettlementSequence prometheus.Gauge

	// --- Payout ---
	PayoutsDispatched *prometheus.CounterVec
	PayoutsDelivered  *prometheus.CounterVec
	PayoutFailures    *prometheus.CounterVec
	PayoutQueueDrops  prometheus.Counter
	PayoutDeliveryDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistSettlementsWritten prometheus.Counter
	PersistJournalsWritten    prometheus.Counter
	PersistBatchSize          prometheus.Histogram
	PersistBatchDur           prometheus.Histogram
	PersistErrors             *prometheus.CounterVec
	PersistRetry              prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Registry
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_registrations_total",
			Help: "Identities registered",
		}, []string{"role"}),

		RegistrationDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_registration_duplicates_total",
			Help: "Registrations rejected for an already-known id",
		}, []string{"role"}),

		// Settlement
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_settlements_total",
			Help: "Settlement attempts by flow and outcome",
		}, []string{"flow", "outcome"}),

		SettlementDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_settlement_duration_seconds",
			Help:    "Time to settle a single seat",
			Buckets: latencyBuckets,
		}, []string{"flow"}),

		DebitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_debit_failures_total",
			Help: "Patient debits rejected for insufficient funds",
		}, []string{"flow"}),

		FeeRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_fee_rejections_total",
			Help: "Settlements rejected because the amount did not cover the platform fee",
		}),

		SettlementSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "care_settlement_sequence",
			Help: "Current global settlement sequence number",
		}),

		// Payout
		PayoutsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_payouts_dispatched_total",
			Help: "Payout instructions enqueued for delivery",
		}, []string{"role"}),

		PayoutsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_payouts_delivered_total",
			Help: "Payout instructions delivered to the payee sink",
		}, []string{"role"}),

		PayoutFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_payout_failures_total",
			Help: "Payout deliveries that failed after the settlement committed",
		}, []string{"role"}),

		PayoutQueueDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_payout_queue_drops_total",
			Help: "Payout instructions dropped due to a full dispatch queue",
		}),

		PayoutDeliveryDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_payout_delivery_duration_seconds",
			Help:    "Payout sink delivery latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"role"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Persistence
		PersistSettlementsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_settlements_written_total",
			Help: "Settlement records written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_persist_batch_size",
			Help:    "Settlements per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "care_persist_retry_total",
			Help: "Persistence retries",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "care_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
