// Package metrics exposes run and session outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hairizuanbinnoorazman/rateloop/session"
)

const namespace = "rateloop"

// Collector records orchestrator outcomes. It satisfies
// orchestrator.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	sessions    *prometheus.CounterVec
	clicks      prometheus.Counter
	signals     prometheus.Counter
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
}

// NewCollector registers the rateloop metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return newCollector(reg, reg)
}

func newCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		gatherer: gatherer,
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		clicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_total",
			Help:      "Click loop iterations across all sessions.",
		}),
		signals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Sessions whose click loop ended on the cooldown message.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of orchestrator runs.",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished.",
		}),
	}
}

// SessionFinished records one session result.
func (c *Collector) SessionFinished(result session.Result) {
	outcome := "failed"
	if result.Success {
		outcome = "success"
	}
	c.sessions.WithLabelValues(outcome).Inc()
	c.clicks.Add(float64(result.Clicks))
	if result.SignalFound {
		c.signals.Inc()
	}
}

// RunFinished records the duration of a run.
func (c *Collector) RunFinished(elapsed time.Duration) {
	c.runDuration.Observe(elapsed.Seconds())
	c.lastRun.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
