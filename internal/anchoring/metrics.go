package anchoring

import (
	"bluecarbon-registry/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes anchoring progress. A nil registerer yields unregistered collectors.
type Metrics struct {
	Enqueued       prometheus.Counter
	Attempts       prometheus.Counter
	AttemptErrors  prometheus.Counter
	Submitted      prometheus.Counter
	Confirmed      prometheus.Counter
	Exhausted      prometheus.Counter
	Records        *prometheus.GaugeVec
	SubmitDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_enqueued_total",
			Help: "Total number of transitions accepted for anchoring",
		}),
		Attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_submit_attempts_total",
			Help: "Total number of ledger submission attempts",
		}),
		AttemptErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_submit_errors_total",
			Help: "Total number of failed ledger submission attempts",
		}),
		Submitted: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_submitted_total",
			Help: "Total number of transitions accepted by the ledger",
		}),
		Confirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_confirmed_total",
			Help: "Total number of anchors that reached ledger finality",
		}),
		Exhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "bcr_anchoring_exhausted_total",
			Help: "Total number of anchors that failed after all retry attempts",
		}),
		Records: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bcr_anchoring_records",
			Help: "Current number of anchoring records by status",
		}, []string{"status"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bcr_anchoring_submit_duration_seconds",
			Help:    "Latency of ledger submission attempts",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) move(from, to domain.AnchorStatus) {
	if from != "" {
		m.Records.WithLabelValues(string(from)).Dec()
	}
	m.Records.WithLabelValues(string(to)).Inc()
}
