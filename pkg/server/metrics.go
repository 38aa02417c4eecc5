package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/thingmud/pkg/command"
)

// Metrics holds Prometheus metric descriptors for the engine.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time
	engine    *Engine

	sessionsConnected *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	thingsTotal       prometheus.Gauge
	commandsTotal     *prometheus.CounterVec
	commandSeconds    prometheus.Histogram
	queueDepth        prometheus.Gauge
	timersFired       prometheus.Counter
	timersPending     prometheus.Gauge
	uptimeSeconds     prometheus.Gauge
	memoryHeapBytes   prometheus.Gauge
	goroutines        prometheus.Gauge
}

var _ command.Observer = (*Metrics)(nil)

// NewMetrics creates the metrics and registers them on reg. A nil reg gets
// a fresh registry so several engines can live in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		sessionsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thingmud_sessions_connected",
			Help: "Number of currently connected sessions by transport.",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thingmud_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		thingsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_things_total",
			Help: "Things in the live registry.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thingmud_commands_processed_total",
			Help: "Commands processed since server start by outcome.",
		}, []string{"outcome"}),
		commandSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thingmud_command_duration_seconds",
			Help:    "Time spent dispatching one command.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_queue_depth",
			Help: "Inputs waiting in the command queue.",
		}),
		timersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thingmud_timers_fired_total",
			Help: "Scheduled callbacks run by the heartbeat.",
		}),
		timersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_timers_pending",
			Help: "Entries waiting in the scheduler heap.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thingmud_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.sessionsConnected,
		m.connectionsTotal,
		m.thingsTotal,
		m.commandsTotal,
		m.commandSeconds,
		m.queueDepth,
		m.timersFired,
		m.timersPending,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// CommandProcessed implements command.Observer.
func (m *Metrics) CommandProcessed(name string, outcome command.Outcome, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(outcome.String()).Inc()
	m.commandSeconds.Observe(elapsed.Seconds())
}

// QueueDepth implements command.Observer.
func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// TimersSwept is the scheduler's sweep observer.
func (m *Metrics) TimersSwept(fired, pending int) {
	m.timersFired.Add(float64(fired))
	m.timersPending.Set(float64(pending))
}

// Connected counts a new session on transport.
func (m *Metrics) Connected(transport string) {
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

// Update refreshes the gauges that are sampled rather than pushed.
func (m *Metrics) Update() {
	if m.engine != nil {
		counts := m.engine.SessionCounts()
		for _, transport := range []string{TransportTCP, TransportWebSocket} {
			m.sessionsConnected.WithLabelValues(transport).Set(float64(counts[transport]))
		}
		m.thingsTotal.Set(float64(m.engine.Things.Len()))
		m.queueDepth.Set(float64(m.engine.Queue.Len()))
		m.timersPending.Set(float64(m.engine.Timing.Pending()))
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
