// Package metrics exposes Prometheus counters for routing and enforcement.
// A nil *Metrics is valid and records nothing, so tests and tools that do
// not serve /metrics can pass nil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reasoner"

// Outcomes for provider requests.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeFallback = "fallback"
)

// Metrics holds the counters. Create it once per process with New.
type Metrics struct {
	providerRequests   *prometheus.CounterVec
	providerFallbacks  prometheus.Counter
	retrievalDegraded  *prometheus.CounterVec
	warningsIssued     *prometheus.CounterVec
	privacyFallthrough prometheus.Counter
	auditWriteFailures prometheus.Counter
	toolCalls          *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider invocations by provider name and outcome.",
		}, []string{"provider", "outcome"}),
		providerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Requests retried once on a fallback provider.",
		}),
		retrievalDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_degraded_total",
			Help:      "Knowledge searches that failed and returned no context.",
		}, []string{"scope"}),
		warningsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_issued_total",
			Help:      "Warnings issued by severity.",
		}, []string{"severity"}),
		privacyFallthrough: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privacy_fallthrough_total",
			Help:      "Privacy-restricted requests routed to a networked provider because no local provider was loaded.",
		}),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Decision log writes that failed and were skipped.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mcp_tool_calls_total",
			Help:      "MCP tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}

	reg.MustRegister(
		m.providerRequests,
		m.providerFallbacks,
		m.retrievalDegraded,
		m.warningsIssued,
		m.privacyFallthrough,
		m.auditWriteFailures,
		m.toolCalls,
	)
	return m
}

// ProviderRequest counts one provider invocation.
func (m *Metrics) ProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// ProviderFallback counts one fallback attempt.
func (m *Metrics) ProviderFallback() {
	if m == nil {
		return
	}
	m.providerFallbacks.Inc()
}

// RetrievalDegraded counts a failed knowledge search.
func (m *Metrics) RetrievalDegraded(scope string) {
	if m == nil {
		return
	}
	m.retrievalDegraded.WithLabelValues(scope).Inc()
}

// WarningIssued counts an issued warning.
func (m *Metrics) WarningIssued(severity string) {
	if m == nil {
		return
	}
	m.warningsIssued.WithLabelValues(severity).Inc()
}

// PrivacyFallthrough counts a privacy-restricted request served by a networked provider.
func (m *Metrics) PrivacyFallthrough() {
	if m == nil {
		return
	}
	m.privacyFallthrough.Inc()
}

// AuditWriteFailure counts a decision log write that was swallowed.
func (m *Metrics) AuditWriteFailure() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

// ToolCall counts one MCP tool call.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
