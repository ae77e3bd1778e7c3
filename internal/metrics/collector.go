// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external
// projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the memory subsystem's Prometheus instruments.
type Collector struct {
	chunksEvicted prometheus.Counter
	chunksDecayed prometheus.Counter
	decayRuns     prometheus.Counter
	reflections   prometheus.Counter
	queueDepth    prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the memcore instruments under the given
// namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.chunksEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_evicted_total",
		Help:      "Total number of chunks evicted by decay",
	})

	c.chunksDecayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_decayed_total",
		Help:      "Total number of chunks with a decayed score persisted",
	})

	c.decayRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decay_runs_total",
		Help:      "Total number of completed decay scans",
	})

	c.reflections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reflection_passes_total",
		Help:      "Total number of reflection passes",
	})

	c.queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reflection_queue_depth",
		Help:      "Pending scheduled reflection requests",
	})

	return c
}

// RecordDecayRun counts a completed decay scan and its outcomes.
func (c *Collector) RecordDecayRun(decayed, evicted int) {
	c.decayRuns.Inc()
	c.chunksDecayed.Add(float64(decayed))
	c.chunksEvicted.Add(float64(evicted))
}

// RecordReflection counts a reflection pass.
func (c *Collector) RecordReflection() {
	c.reflections.Inc()
}

// SetQueueDepth records the pending scheduled reflection count.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}
