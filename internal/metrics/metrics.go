// Package metrics provides the Prometheus collectors for FAST bus traffic
// and the HTTP handler that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BusMetrics contains the per-processor serial bus metrics. A nil
// *BusMetrics is valid and records nothing.
type BusMetrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	UnknownMessages  *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	ConnectRetries   *prometheus.CounterVec
	ConfirmWait      *prometheus.HistogramVec
	Connected        *prometheus.GaugeVec
}

// NewBusMetrics creates the bus collectors without registering them
func NewBusMetrics() *BusMetrics {
	return &BusMetrics{
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fastbus",
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total number of frames written to a processor",
			},
			[]string{"processor"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fastbus",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of frames received from a processor",
			},
			[]string{"processor", "header"},
		),

		UnknownMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fastbus",
				Subsystem: "messages",
				Name:      "unknown_total",
				Help:      "Frames that matched neither a handler nor a pending confirmation",
			},
			[]string{"processor"},
		),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fastbus",
				Subsystem: "messages",
				Name:      "decode_errors_total",
				Help:      "Frames that were not valid text",
			},
			[]string{"processor"},
		),

		ConnectRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fastbus",
				Subsystem: "connection",
				Name:      "retries_total",
				Help:      "Failed attempts to open a processor port",
			},
			[]string{"processor"},
		),

		ConfirmWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fastbus",
				Subsystem: "confirm",
				Name:      "wait_seconds",
				Help:      "Time between writing a confirmed frame and receiving its confirmation",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"processor"},
		),

		Connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fastbus",
				Subsystem: "connection",
				Name:      "up",
				Help:      "Whether the processor connection is open (0/1)",
			},
			[]string{"processor"},
		),
	}
}

// Register registers every bus collector with reg
func (m *BusMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.MessagesSent,
		m.MessagesReceived,
		m.UnknownMessages,
		m.DecodeErrors,
		m.ConnectRetries,
		m.ConfirmWait,
		m.Connected,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Sent counts one written frame
func (m *BusMetrics) Sent(processor string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(processor).Inc()
}

// Received counts one routed frame
func (m *BusMetrics) Received(processor, header string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(processor, header).Inc()
}

// Unknown counts one unrouted frame
func (m *BusMetrics) Unknown(processor string) {
	if m == nil {
		return
	}
	m.UnknownMessages.WithLabelValues(processor).Inc()
}

// DecodeError counts one frame that failed to decode
func (m *BusMetrics) DecodeError(processor string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(processor).Inc()
}

// Retry counts one failed open attempt
func (m *BusMetrics) Retry(processor string) {
	if m == nil {
		return
	}
	m.ConnectRetries.WithLabelValues(processor).Inc()
}

// ObserveConfirm records how long a confirmation took
func (m *BusMetrics) ObserveConfirm(processor string, d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmWait.WithLabelValues(processor).Observe(d.Seconds())
}

// SetConnected updates the connection gauge
func (m *BusMetrics) SetConnected(processor string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.Connected.WithLabelValues(processor).Set(v)
}

// Registry owns the Prometheus registry for the service
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Bus                *BusMetrics
}

// NewRegistry creates a registry with the bus metrics and Go runtime metrics
func NewRegistry() (*Registry, error) {
	reg := prometheus.NewRegistry()

	bus := NewBusMetrics()
	if err := bus.Register(reg); err != nil {
		return nil, err
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{prometheusRegistry: reg, Bus: bus}, nil
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
