package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes worker run outcomes as Prometheus metrics on a
// private registry.
type Collector struct {
	registry     *prometheus.Registry
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	listingsNew  *prometheus.CounterVec
	circuitsOpen *prometheus.GaugeVec
	sessionsUsed prometheus.Gauge
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adhound",
		Subsystem: "worker",
		Name:      "runs_total",
		Help:      "Total worker iterations by source and outcome.",
	}, []string{"source", "outcome"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adhound",
		Subsystem: "worker",
		Name:      "run_duration_seconds",
		Help:      "Latency distribution of fetch+parse iterations.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"source"})

	listingsNew := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adhound",
		Subsystem: "worker",
		Name:      "listings_emitted_total",
		Help:      "New listings emitted after dedup filtering.",
	}, []string{"source"})

	circuitsOpen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "adhound",
		Subsystem: "worker",
		Name:      "circuit_open",
		Help:      "Whether the error budget for a source is exhausted (1=open).",
	}, []string{"user", "source"})

	sessionsUsed := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "adhound",
		Subsystem: "browser",
		Name:      "sessions_in_use",
		Help:      "Browser sessions currently held by workers.",
	})

	for _, c := range []prometheus.Collector{runsTotal, runDuration, listingsNew, circuitsOpen, sessionsUsed} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:     registry,
		runsTotal:    runsTotal,
		runDuration:  runDuration,
		listingsNew:  listingsNew,
		circuitsOpen: circuitsOpen,
		sessionsUsed: sessionsUsed,
	}, nil
}

// Handler returns an HTTP handler for exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRun records one worker iteration.
func (c *Collector) RecordRun(source string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.runsTotal.WithLabelValues(source, outcome).Inc()
	c.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordListings counts listings that survived the dedup filter.
func (c *Collector) RecordListings(source string, count int) {
	if count <= 0 {
		return
	}
	c.listingsNew.WithLabelValues(source).Add(float64(count))
}

// SetCircuitOpen flags or clears the circuit gauge for a worker pair.
func (c *Collector) SetCircuitOpen(user, source string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	c.circuitsOpen.WithLabelValues(user, source).Set(v)
}

// SetSessionsInUse reports the number of held browser sessions.
func (c *Collector) SetSessionsInUse(n int) {
	c.sessionsUsed.Set(float64(n))
}
