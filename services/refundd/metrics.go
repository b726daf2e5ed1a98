package refundd

import "refundkeeper/observability"

// Metrics exposes Prometheus collectors for refundd instrumentation.
type Metrics = observability.RefunddMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Refundd() }
