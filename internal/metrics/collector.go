package lbmetrics

import (
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "l4lb"
	subsystem = "lb"
)

// Label names for load-balancer metrics.
const (
	labelServiceAddr = "service_addr"
	labelServerAddr  = "server_addr"
	labelDiscipline  = "discipline"
	labelMode        = "mode"
)

// -------------------------------------------------------------------------
// Collector — Prometheus L4LB Metrics
// -------------------------------------------------------------------------

// Collector holds all load-balancer Prometheus metrics.
//
// Metrics are designed for production DC monitoring:
//   - Session gauges track currently active flows per server.
//   - Packet counters track forwarded/dropped volumes per service.
//   - Scheduler counters record which server each discipline picked.
//   - Drain gauges track servers/services currently winding down.
//
// cmd/l4lbd updates only PacketsForwarded, from its dispatch loop; the other
// metrics change only when a caller invokes their methods.
type Collector struct {
	// Sessions tracks the number of currently active sessions per server.
	// Incremented by RegisterSession, decremented by UnregisterSession.
	Sessions *prometheus.GaugeVec

	// PacketsForwarded counts packets successfully rewritten and re-emitted,
	// labeled by service and the forwarding mode that handled them.
	PacketsForwarded *prometheus.CounterVec

	// PacketsDropped counts packets that failed classification, scheduling,
	// or rewriting, labeled by service.
	PacketsDropped *prometheus.CounterVec

	// ScheduleSelections counts each discipline's server picks, labeled by
	// service, discipline, and the chosen server.
	ScheduleSelections *prometheus.CounterVec

	// ServersDraining tracks servers currently in a graceful-removal wait,
	// labeled by service.
	ServersDraining *prometheus.GaugeVec

	// ServicesDraining tracks services currently in a graceful-removal wait.
	ServicesDraining prometheus.Gauge
}

// NewCollector creates a Collector with all load-balancer metrics
// registered against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "l4lb_lb_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.PacketsForwarded,
		c.PacketsDropped,
		c.ScheduleSelections,
		c.ServersDraining,
		c.ServicesDraining,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	serverLabels := []string{labelServiceAddr, labelServerAddr}
	serviceLabels := []string{labelServiceAddr}
	forwardLabels := []string{labelServiceAddr, labelMode}
	scheduleLabels := []string{labelServiceAddr, labelDiscipline, labelServerAddr}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active sessions bound to a server.",
		}, serverLabels),

		PacketsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_forwarded_total",
			Help:      "Total packets rewritten and re-emitted toward a server or client.",
		}, forwardLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped due to classification, scheduling, or rewrite failure.",
		}, serviceLabels),

		ScheduleSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "schedule_selections_total",
			Help:      "Total server selections made by the scheduler, per discipline.",
		}, scheduleLabels),

		ServersDraining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "servers_draining",
			Help:      "Number of servers currently in graceful removal per service.",
		}, serviceLabels),

		ServicesDraining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "services_draining",
			Help:      "Number of services currently in graceful removal.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the active sessions gauge for the given server.
func (c *Collector) RegisterSession(service, server netip.AddrPort) {
	c.Sessions.WithLabelValues(service.String(), server.String()).Inc()
}

// UnregisterSession decrements the active sessions gauge for the given server.
func (c *Collector) UnregisterSession(service, server netip.AddrPort) {
	c.Sessions.WithLabelValues(service.String(), server.String()).Dec()
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsForwarded increments the forwarded packets counter for the
// given service and forwarding mode.
func (c *Collector) IncPacketsForwarded(service netip.AddrPort, mode string) {
	c.PacketsForwarded.WithLabelValues(service.String(), mode).Inc()
}

// IncPacketsDropped increments the dropped packets counter for the given
// service.
func (c *Collector) IncPacketsDropped(service netip.AddrPort) {
	c.PacketsDropped.WithLabelValues(service.String()).Inc()
}

// -------------------------------------------------------------------------
// Scheduler
// -------------------------------------------------------------------------

// RecordSelection increments the selection counter for the server a
// discipline chose.
func (c *Collector) RecordSelection(service netip.AddrPort, discipline, server string) {
	c.ScheduleSelections.WithLabelValues(service.String(), discipline, server).Inc()
}

// -------------------------------------------------------------------------
// Drain Tracking
// -------------------------------------------------------------------------

// SetServersDraining sets the number of servers currently draining for a
// service.
func (c *Collector) SetServersDraining(service netip.AddrPort, n int) {
	c.ServersDraining.WithLabelValues(service.String()).Set(float64(n))
}

// SetServicesDraining sets the number of services currently draining.
func (c *Collector) SetServicesDraining(n int) {
	c.ServicesDraining.Set(float64(n))
}
