// Package metrics exports pool and readiness state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/readiness"
)

const namespace = "schemapool"

// PoolSource supplies pool statistics.
type PoolSource interface {
	Stats() connpool.Stats
}

// StateSource supplies the readiness state.
type StateSource interface {
	State() readiness.State
}

// Collector reads pool statistics and the readiness state at scrape time.
type Collector struct {
	pool PoolSource
	gate StateSource

	connections        *prometheus.Desc
	maxConnections     *prometheus.Desc
	acquires           *prometheus.Desc
	emptyAcquires      *prometheus.Desc
	canceledAcquires   *prometheus.Desc
	acquireSeconds     *prometheus.Desc
	evicted            *prometheus.Desc
	discarded          *prometheus.Desc
	validationFailures *prometheus.Desc
	readiness          *prometheus.Desc
}

// NewCollector returns a Collector over pool and gate.
func NewCollector(pool PoolSource, gate StateSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		pool:               pool,
		gate:               gate,
		connections:        desc("pool_connections", "Connections by state.", "state"),
		maxConnections:     desc("pool_max_connections", "Upper bound on live connections."),
		acquires:           desc("pool_acquires_total", "Successful borrows."),
		emptyAcquires:      desc("pool_empty_acquires_total", "Borrows that had to wait for or open a connection."),
		canceledAcquires:   desc("pool_canceled_acquires_total", "Borrows abandoned by the caller or the acquire timeout."),
		acquireSeconds:     desc("pool_acquire_duration_seconds_total", "Time spent waiting in borrows."),
		evicted:            desc("pool_evicted_total", "Connections closed by the idle sweep."),
		discarded:          desc("pool_discarded_total", "Connections discarded after failing validation or being returned unusable."),
		validationFailures: desc("pool_validation_failures_total", "Failed validation queries."),
		readiness:          desc("readiness_state", "1 for the current readiness state.", "state"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.maxConnections
	ch <- c.acquires
	ch <- c.emptyAcquires
	ch <- c.canceledAcquires
	ch <- c.acquireSeconds
	ch <- c.evicted
	ch <- c.discarded
	ch <- c.validationFailures
	ch <- c.readiness
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.connections, float64(s.Active), "active")
	gauge(c.connections, float64(s.Idle), "idle")
	gauge(c.connections, float64(s.Constructing), "constructing")
	gauge(c.maxConnections, float64(s.Max))
	counter(c.acquires, float64(s.AcquireCount))
	counter(c.emptyAcquires, float64(s.EmptyAcquireCount))
	counter(c.canceledAcquires, float64(s.CanceledAcquireCount))
	counter(c.acquireSeconds, s.AcquireDuration.Seconds())
	counter(c.evicted, float64(s.Evicted))
	counter(c.discarded, float64(s.Discarded))
	counter(c.validationFailures, float64(s.ValidationFailures))

	current := c.gate.State()
	for _, st := range []readiness.State{readiness.NotReady, readiness.Ready, readiness.Degraded} {
		v := 0.0
		if st == current {
			v = 1
		}
		gauge(c.readiness, v, st.String())
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and process
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
