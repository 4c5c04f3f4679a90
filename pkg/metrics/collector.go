package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "rfskeeper"

// Event outcomes recorded by the monitor.
const (
	OutcomeDispatched   = "dispatched"
	OutcomeUnknownWatch = "unknown_watch"
	OutcomeMasked       = "masked"
	OutcomeRemoved      = "removed"
	OutcomeOverflow     = "overflow"
	OutcomeReleased     = "released"
)

// Reload results recorded by the keeper.
const (
	ResultSuccess    = "success"
	ResultUnchanged  = "unchanged"
	ResultReadError  = "read_error"
	ResultParseError = "parse_error"
)

// Collector owns every metric of the pool, the monitor and the keepers.
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
type Collector struct {
	registry *prometheus.Registry

	tasksTotal *prometheus.CounterVec
	queueDepth prometheus.Gauge

	eventsTotal     *prometheus.CounterVec
	readErrorsTotal prometheus.Counter
	watches         prometheus.Gauge

	reloadsTotal   *prometheus.CounterVec
	reloadDuration *prometheus.HistogramVec
	bufferVersion  *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with registry. A nil
// registry gets a fresh private one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "tasks_total",
				Help:      "Tasks submitted to the worker pool by result",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "queue_depth",
				Help:      "Tasks waiting for a free worker",
			},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "events_total",
				Help:      "Raw change records decoded by the monitor by outcome",
			},
			[]string{"outcome"},
		),
		readErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "read_errors_total",
				Help:      "Errors returned by the notification backend while waiting or reading",
			},
		),
		watches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "registrations",
				Help:      "Live monitor registrations",
			},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "reloads_total",
				Help:      "File reloads by path and result",
			},
			[]string{"path", "result"},
		),
		reloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "reload_duration_seconds",
				Help:      "Time spent reading and parsing a file",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"path"},
		),
		bufferVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "buffer_version",
				Help:      "Version of the currently published value",
			},
			[]string{"path"},
		),
	}

	registry.MustRegister(
		c.tasksTotal,
		c.queueDepth,
		c.eventsTotal,
		c.readErrorsTotal,
		c.watches,
		c.reloadsTotal,
		c.reloadDuration,
		c.bufferVersion,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) TaskAccepted() {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues("accepted").Inc()
}

func (c *Collector) TaskRejected() {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues("rejected").Inc()
}

func (c *Collector) TaskPanicked() {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues("panicked").Inc()
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

func (c *Collector) Event(outcome string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ReadError() {
	if c == nil {
		return
	}
	c.readErrorsTotal.Inc()
}

func (c *Collector) SetRegistrations(n int) {
	if c == nil {
		return
	}
	c.watches.Set(float64(n))
}

// Reload records one keeper reload attempt.
func (c *Collector) Reload(path, result string, took time.Duration) {
	if c == nil {
		return
	}
	c.reloadsTotal.WithLabelValues(path, result).Inc()
	c.reloadDuration.WithLabelValues(path).Observe(took.Seconds())
}

func (c *Collector) SetVersion(path string, version uint64) {
	if c == nil {
		return
	}
	c.bufferVersion.WithLabelValues(path).Set(float64(version))
}
