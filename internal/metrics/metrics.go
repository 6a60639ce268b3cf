// Package metrics registers the Prometheus instruments a TreeLogger reports
// against: package-level promauto.New* registrations
// under one metric-name prefix, called from the components that own the
// data rather than pulled via accessors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "treelog_queue_depth",
		Help: "Current number of pending events in a TreeLogger's event queue.",
	}, []string{"logger"})

	droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treelog_dropped_events_total",
		Help: "Total number of events dropped because a bounded queue was full.",
	}, []string{"logger"})

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treelog_flushes_total",
		Help: "Total number of batch flushes issued to a Writer.",
	}, []string{"logger"})

	flushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treelog_flush_duration_seconds",
		Help:    "Time spent waiting on a Writer's batched calls during a single flush.",
		Buckets: prometheus.DefBuckets,
	}, []string{"logger"})
)

// SetQueueDepth reports the current depth of logger's event queue.
func SetQueueDepth(logger string, depth int) {
	queueDepth.WithLabelValues(logger).Set(float64(depth))
}

// IncDropped increments the dropped-event counter for logger by n.
func IncDropped(logger string, n int64) {
	droppedEvents.WithLabelValues(logger).Add(float64(n))
}

// IncFlush records that logger issued one more batch flush.
func IncFlush(logger string) {
	flushesTotal.WithLabelValues(logger).Inc()
}

// ObserveFlushDuration records how long a flush's batched Writer calls took.
func ObserveFlushDuration(logger string, d time.Duration) {
	flushDuration.WithLabelValues(logger).Observe(d.Seconds())
}
