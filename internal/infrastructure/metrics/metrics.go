package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chorus"

// Metrics groups every collector the service exports. All fields are safe
// for concurrent use.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	Deliveries        *prometheus.CounterVec
	RelayMessages     *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	HandlerFailures   *prometheus.CounterVec
	IdentifiersIssued prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	FramesRejected    *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Tests pass prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "connections_active",
			Help: "Authenticated websocket connections held by this process.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "rooms_active",
			Help: "Rooms with at least one local subscriber.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "deliveries_total",
			Help: "Frames queued to connections by outcome.",
		}, []string{"result"}),
		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "messages_total",
			Help: "Envelopes crossing the relay by direction and outcome.",
		}, []string{"direction", "result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventbus", Name: "published_total",
			Help: "Domain events published on the in-process bus.",
		}, []string{"event"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventbus", Name: "handler_failures_total",
			Help: "Subscriber errors and panics.",
		}, []string{"event"}),
		IdentifiersIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snowflake", Name: "issued_total",
			Help: "Identifiers generated by this node.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "failures_total",
			Help: "Rejected credentials by surface.",
		}, []string{"surface"}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "frames_rejected_total",
			Help: "Inbound frames answered with an error acknowledgement.",
		}, []string{"code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.RoomsActive,
		m.Deliveries,
		m.RelayMessages,
		m.EventsPublished,
		m.HandlerFailures,
		m.IdentifiersIssued,
		m.AuthFailures,
		m.FramesRejected,
		m.HTTPDuration,
	)

	return m
}

// NewWithRuntime also exports process and Go runtime collectors.
func NewWithRuntime() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// NewNop registers on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
