// Package metrics exposes upload server activity as Prometheus collectors.
// Collectors live on a private registry so tests and embedders can create
// as many servers as they like.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sheerbytes/thrudrop/internal/observe"
)

// Metrics counts connections, transfers and bytes. It is an observe.Sink.
type Metrics struct {
	reg *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	transfers           *prometheus.CounterVec
	resumedTransfers    prometheus.Counter
	bytesReceived       prometheus.Counter
	transferSize        prometheus.Histogram
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "thrudrop_connections_accepted_total",
			Help: "Total number of accepted upload connections",
		}),
		connectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "thrudrop_connections_rejected_total",
			Help: "Connections accepted during shutdown or closed before a worker served them",
		}),
		connectionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thrudrop_connections_closed_total",
				Help: "Total number of served connections by termination cause",
			},
			[]string{"cause"},
		),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "thrudrop_connections_active",
			Help: "Connections currently owned by a worker",
		}),
		transfers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thrudrop_transfers_total",
				Help: "Total number of completed transfer requests by outcome",
			},
			[]string{"outcome"}, // "verified", "mismatch", "skipped"
		),
		resumedTransfers: f.NewCounter(prometheus.CounterOpts{
			Name: "thrudrop_transfers_resumed_total",
			Help: "Transfers that continued from a non-zero offset",
		}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "thrudrop_bytes_received_total",
			Help: "Data bytes appended to artifacts, including interrupted transfers",
		}),
		transferSize: f.NewHistogram(prometheus.HistogramOpts{
			Name: "thrudrop_transfer_size_bytes",
			Help: "Declared size of verified and mismatched transfers",
			Buckets: []float64{
				1024,       // 1KB
				65536,      // 64KB
				1048576,    // 1MB
				16777216,   // 16MB
				134217728,  // 128MB
				1073741824, // 1GB
			},
		}),
	}
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// RegisterQueue exposes the pending dispatch queue length.
func (m *Metrics) RegisterQueue(length func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "thrudrop_dispatch_queue_length",
		Help: "Accepted connections waiting for a worker",
	}, func() float64 { return float64(length()) })
}

// RegisterWorkers exposes pool size and the number of busy workers.
func (m *Metrics) RegisterWorkers(size int, busy func() int) {
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "thrudrop_workers",
		Help: "Fixed size of the worker pool",
	}, func() float64 { return float64(size) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "thrudrop_workers_busy",
		Help: "Workers currently serving a connection",
	}, func() float64 { return float64(busy()) })
}

// Emit updates collectors from a connection event.
func (m *Metrics) Emit(e observe.Event) {
	switch e.Kind {
	case observe.ConnectionAccepted:
		m.connectionsAccepted.Inc()
	case observe.ConnectionRejected:
		m.connectionsRejected.Inc()
	case observe.ConnectionStarted:
		m.activeConnections.Inc()
	case observe.ConnectionClosed:
		m.activeConnections.Dec()
		m.connectionsClosed.WithLabelValues(e.Cause).Inc()
		if e.Bytes > 0 {
			m.bytesReceived.Add(float64(e.Bytes))
		}
	case observe.ResumeOffered:
		if e.Offset > 0 {
			m.resumedTransfers.Inc()
		}
	case observe.TransferSkipped:
		m.transfers.WithLabelValues("skipped").Inc()
	case observe.TransferReceived:
		m.bytesReceived.Add(float64(e.Bytes))
	case observe.ChecksumVerified:
		m.transfers.WithLabelValues("verified").Inc()
		m.transferSize.Observe(float64(e.DeclaredSize))
	case observe.ChecksumMismatch:
		m.transfers.WithLabelValues("mismatch").Inc()
		m.transferSize.Observe(float64(e.DeclaredSize))
	}
}
