// Package metrics records gating, approval and handoff counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the agentgate metrics on a private registry, so several
// collectors can coexist in one process (tests build one per service).
type Collector struct {
	registry *prometheus.Registry

	autonomyDecisions    *prometheus.CounterVec
	actionsLogged        *prometheus.CounterVec
	approvalsCreated     *prometheus.CounterVec
	approvalsResolved    *prometheus.CounterVec
	handoffTransitions   *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	sweepDuration        prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		autonomyDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autonomy_decisions_total",
			Help:      "Autonomy checks by resolved level and outcome",
		}, []string{"level", "outcome"}),
		actionsLogged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_logged_total",
			Help:      "Action log entries written",
		}, []string{"category", "requires_approval", "success"}),
		approvalsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_created_total",
			Help:      "Approval requests opened",
		}, []string{"action_type"}),
		approvalsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_resolved_total",
			Help:      "Approval requests resolved by terminal status",
		}, []string{"status"}),
		handoffTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoff_transitions_total",
			Help:      "Handoff state transitions",
		}, []string{"to"}),
		notificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notification bridge posts that failed",
		}, []string{"message_type"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_sweep_duration_seconds",
			Help:      "Duration of approval expiry sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAutonomyDecision counts one autonomy check.
func (c *Collector) RecordAutonomyDecision(level string, allowed, requiresApproval bool) {
	outcome := "autonomous"
	switch {
	case !allowed:
		outcome = "blocked"
	case requiresApproval:
		outcome = "approval_required"
	}
	c.autonomyDecisions.WithLabelValues(level, outcome).Inc()
}

// RecordActionLogged counts one action log entry.
func (c *Collector) RecordActionLogged(category string, requiresApproval, success bool) {
	c.actionsLogged.WithLabelValues(category, strconv.FormatBool(requiresApproval), strconv.FormatBool(success)).Inc()
}

// RecordApprovalCreated counts one opened approval request.
func (c *Collector) RecordApprovalCreated(actionType string) {
	c.approvalsCreated.WithLabelValues(actionType).Inc()
}

// RecordApprovalResolved counts one approval resolution.
func (c *Collector) RecordApprovalResolved(status string) {
	c.approvalsResolved.WithLabelValues(status).Inc()
}

// RecordHandoffTransition counts one handoff entering a status.
func (c *Collector) RecordHandoffTransition(to string) {
	c.handoffTransitions.WithLabelValues(to).Inc()
}

// RecordNotificationFailure counts one failed bridge post.
func (c *Collector) RecordNotificationFailure(messageType string) {
	c.notificationFailures.WithLabelValues(messageType).Inc()
}

// ObserveSweep records how long an approval sweep took.
func (c *Collector) ObserveSweep(d time.Duration) {
	c.sweepDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
