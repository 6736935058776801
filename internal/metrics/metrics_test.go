package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RefreshResult("shopee", "success")
	m.RefreshResult("shopee", "success")
	m.ProviderCall("tiktok", "provider_error")
	m.OAuthFlow("facebook", "callback", "success")
	m.ObserveHTTP("/health", "GET", "200", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("shopee", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("tiktok", "provider_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OAuthFlows.WithLabelValues("facebook", "callback", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/health", "GET", "200")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RefreshResult("shopee", "success")
		m.ProviderCall("shopee", "success")
		m.OAuthFlow("shopee", "start", "success")
		m.ObserveHTTP("/", "GET", "200", 0)
	})
}
