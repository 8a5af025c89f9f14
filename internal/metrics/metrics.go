// Package metrics exposes Prometheus collectors for collection runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dupreport"

// Collectors groups every metric recorded by the ingestion pipeline.
type Collectors struct {
	messages    *prometheus.CounterVec
	available   *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collectors{
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages visited by outcome.",
		}, []string{"server", "outcome"}),
		available: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_available",
			Help:      "1 when the last run reached the server.",
		}, []string{"server"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Collection runs by result.",
		}, []string{"result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of collection runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

// ObserveMessage counts one visited message.
func (c *Collectors) ObserveMessage(server, outcome string) {
	c.messages.WithLabelValues(server, outcome).Inc()
}

// SetAvailable records whether server could be reached.
func (c *Collectors) SetAvailable(server string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	c.available.WithLabelValues(server).Set(v)
}

// ObserveRun records a finished run.
func (c *Collectors) ObserveRun(started time.Time, d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
	c.lastRun.Set(float64(started.Add(d).Unix()))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
