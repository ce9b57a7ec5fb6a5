package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the browser backend.
type Metrics struct {
	// Ad blocking
	RequestsBlocked *prometheus.CounterVec
	RequestsChecked prometheus.Counter
	BlockState      prometheus.Gauge

	// Credential vault
	VaultOps       *prometheus.CounterVec
	VaultRecords   prometheus.Gauge
	AutofillEvents *prometheus.CounterVec

	// Page channel
	WSConnections prometheus.Gauge
	PageMessages  *prometheus.CounterVec

	// System
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsBlocked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vela_adblock_blocked_total",
				Help: "Total number of blocked subresource requests",
			},
			[]string{"rule"},
		),
		RequestsChecked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vela_adblock_checked_total",
				Help: "Total number of block decisions made",
			},
		),
		BlockState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vela_adblock_enabled",
				Help: "Whether ad blocking is currently enabled (1/0)",
			},
		),

		VaultOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vela_vault_operations_total",
				Help: "Credential store operations by type and outcome",
			},
			[]string{"op", "outcome"},
		),
		VaultRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vela_vault_records",
				Help: "Number of stored credential records",
			},
		),
		AutofillEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vela_autofill_events_total",
				Help: "Autofill flow events by stage",
			},
			[]string{"stage"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vela_ws_connections",
				Help: "Active WebSocket connections",
			},
		),
		PageMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vela_page_messages_total",
				Help: "Page-to-host messages by tag",
			},
			[]string{"tag"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vela_uptime_seconds",
				Help: "Backend uptime in seconds",
			},
		),
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
