package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	refunddMetricsOnce sync.Once
	refunddRegistry    *RefunddMetrics
)

// RefunddMetrics wraps collectors tracking refund job health.
type RefunddMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	verdicts      *prometheus.CounterVec
	refunds       prometheus.Counter
	refundedTotal prometheus.Counter
	errors        *prometheus.CounterVec
	pauseEngaged  prometheus.Gauge
}

// Refundd exposes the metrics registry for refundd.
func Refundd() *RefunddMetrics {
	refunddMetricsOnce.Do(func() {
		refunddRegistry = &RefunddMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "runs_total",
				Help:      "Count of refund job runs segmented by outcome.",
			}, []string{"outcome"}),
			runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "run_duration_seconds",
				Help:      "Latency distribution for refund job runs that acquired the lock.",
				Buckets:   prometheus.DefBuckets,
			}),
			verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "verdicts_total",
				Help:      "Count of address verifications segmented by verdict.",
			}, []string{"verdict"}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "refunds_total",
				Help:      "Count of refunds included in accepted transactions.",
			}),
			refundedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "refunded_lovelace_total",
				Help:      "Total lovelace paid out in accepted refund transactions.",
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "errors_total",
				Help:      "Count of refund job failures segmented by reason.",
			}, []string{"reason"}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refundkeeper",
				Subsystem: "refundd",
				Name:      "pause_engaged",
				Help:      "Indicates whether the refund job pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			refunddRegistry.runs,
			refunddRegistry.runDuration,
			refunddRegistry.verdicts,
			refunddRegistry.refunds,
			refunddRegistry.refundedTotal,
			refunddRegistry.errors,
			refunddRegistry.pauseEngaged,
		)
	})
	return refunddRegistry
}

// ObserveRun records a finished run. Duration is only observed for runs that
// did real work.
func (m *RefunddMetrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(label(outcome)).Inc()
	if d > 0 {
		m.runDuration.Observe(d.Seconds())
	}
}

// RecordVerdict increments the verdict counter.
func (m *RefunddMetrics) RecordVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(label(verdict)).Inc()
}

// RecordDisbursement adds an accepted refund transaction to the totals.
func (m *RefunddMetrics) RecordDisbursement(count int, amount int64) {
	if m == nil || count <= 0 {
		return
	}
	m.refunds.Add(float64(count))
	if amount > 0 {
		m.refundedTotal.Add(float64(amount))
	}
}

// RecordError increments the error counter for the supplied reason.
func (m *RefunddMetrics) RecordError(reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(label(reason)).Inc()
}

// SetPause toggles the pause_engaged gauge.
func (m *RefunddMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func label(value string) string {
	if value = strings.TrimSpace(value); value == "" {
		return "unspecified"
	}
	return value
}
