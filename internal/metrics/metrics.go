// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Connection metrics
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flow_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_connections_active",
		Help: "Current number of open WebSocket connections",
	})

	UpgradesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flow_upgrades_failed_total",
		Help: "Total number of failed WebSocket upgrade handshakes",
	})

	// Presence metrics
	UsersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_users_active",
		Help: "Current number of logged-in users",
	})

	OffersPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_offers_pending",
		Help: "Current number of pending rendezvous offers",
	})

	// Message metrics
	FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flow_frames_received_total",
		Help: "Total number of text frames received from clients",
	})

	FramesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flow_frames_sent_total",
		Help: "Total number of text frames written to clients",
	})

	FramesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_frames_rejected_total",
		Help: "Total inbound frames rejected, by error kind",
	}, []string{"kind"})

	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flow_send_failures_total",
		Help: "Total failed writes to client sinks",
	})

	// System metrics (fed by the gopsutil sampler)
	processCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_process_cpu_percent",
		Help: "Process CPU usage percentage",
	})

	processMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_process_memory_bytes",
		Help: "Process resident memory in bytes",
	})

	goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flow_goroutines",
		Help: "Current number of goroutines",
	})
)

// Rejection kinds for FramesRejected. Matches the error taxonomy: each
// recoverable per-frame failure is counted under the sender and the
// connection continues.
const (
	KindParse    = "parse"
	KindSchema   = "schema"
	KindAuth     = "auth"
	KindNotFound = "not_found"
	KindState    = "state"
	KindUnknown  = "unknown_type"
)

// registered guards against double registration when multiple servers are
// created in one process (tests).
var registered int32

// MustRegister installs all collectors into the default Prometheus
// registry. Safe to call more than once.
func MustRegister() {
	if !atomic.CompareAndSwapInt32(&registered, 0, 1) {
		return
	}
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		UpgradesFailed,
		UsersActive,
		OffersPending,
		FramesReceived,
		FramesSent,
		FramesRejected,
		SendFailures,
		processCPUPercent,
		processMemoryBytes,
		goroutines,
	)
}
