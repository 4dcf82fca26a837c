// Package telemetry carries the study's Prometheus metrics and OpenTelemetry
// tracing setup.
package telemetry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records model run metrics. It satisfies tlcal.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	InFlight    prometheus.Gauge
	BestScore   prometheus.Gauge

	mu   sync.Mutex
	best float64
}

// NewCollector registers the study metrics against reg, defaulting to the
// global registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tlcal_runs_total",
		Help: "Model runs finished, labeled by outcome (ok, failed, error, timeout).",
	}, []string{"status"}), "tlcal_runs_total")
	if err != nil {
		return nil, err
	}
	dur, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tlcal_run_duration_seconds",
		Help:    "Wall time of one model run, materialization to scoring.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "tlcal_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	inflight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tlcal_runs_in_flight",
		Help: "Model runs currently executing.",
	}), "tlcal_runs_in_flight")
	if err != nil {
		return nil, err
	}
	best, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tlcal_best_score",
		Help: "Lowest mean RMSE of any successful run.",
	}), "tlcal_best_score")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:    gatherer,
		Runs:        runs,
		RunDuration: dur,
		InFlight:    inflight,
		BestScore:   best,
		best:        math.Inf(1),
	}, nil
}

func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.InFlight.Inc()
}

func (c *Collector) RunFinished(status string, d time.Duration, score float64) {
	if c == nil {
		return
	}
	c.InFlight.Dec()
	c.Runs.WithLabelValues(status).Inc()
	c.RunDuration.Observe(d.Seconds())
	if math.IsInf(score, 0) || math.IsNaN(score) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if score < c.best {
		c.best = score
		c.BestScore.Set(score)
	}
}

// Gatherer returns the gatherer the collector registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// WriteTextfile writes the current metrics to fp in the node-exporter
// textfile format.
func (c *Collector) WriteTextfile(fp string) error {
	if err := prometheus.WriteToTextfile(fp, c.Gatherer()); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", fp, err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
