package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookmarkchecker"

// Metrics collects probe and batch counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	batches       prometheus.Counter
	batchSize     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Bookmark probes by classified outcome.",
		}, []string{"outcome"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Time spent on a single bookmark probe.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_in_flight",
			Help:      "Probes currently waiting on the network.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed validation batches.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_bookmarks",
			Help:      "Bookmarks per validation batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(m.probes, m.probeDuration, m.inFlight, m.batches, m.batchSize)
	return m
}

func (m *Metrics) ProbeStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) ProbeFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.probes.WithLabelValues(outcome).Inc()
	m.probeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchCompleted(size int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.batchSize.Observe(float64(size))
}
