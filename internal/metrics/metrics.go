// Package metrics exposes prometheus collectors for the marketplace broker
// and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sellerhub"

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	TokenRefreshes *prometheus.CounterVec
	ProviderCalls  *prometheus.CounterVec
	OAuthFlows     *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by platform and result.",
		}, []string{"platform", "result"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Authenticated marketplace API calls by platform and result.",
		}, []string{"platform", "result"}),
		OAuthFlows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_flows_total",
			Help:      "OAuth connect flows by platform, stage and result.",
		}, []string{"platform", "stage", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.TokenRefreshes, m.ProviderCalls, m.OAuthFlows, m.HTTPRequests, m.HTTPDuration)
	return m
}

// RefreshResult records one refresh attempt
func (m *Metrics) RefreshResult(platform, result string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(platform, result).Inc()
}

// ProviderCall records one authenticated API call
func (m *Metrics) ProviderCall(platform, result string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(platform, result).Inc()
}

// OAuthFlow records a connect flow stage
func (m *Metrics) OAuthFlow(platform, stage, result string) {
	if m == nil {
		return
	}
	m.OAuthFlows.WithLabelValues(platform, stage, result).Inc()
}

// ObserveHTTP records a served request
func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
