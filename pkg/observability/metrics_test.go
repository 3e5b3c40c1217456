package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}
		if metrics.LoginAttemptsTotal == nil {
			t.Error("LoginAttemptsTotal is nil")
		}
		if metrics.TokenVerificationsTotal == nil {
			t.Error("TokenVerificationsTotal is nil")
		}
		if metrics.StorageOperationsTotal == nil {
			t.Error("StorageOperationsTotal is nil")
		}
		if metrics.StorageOperationDuration == nil {
			t.Error("StorageOperationDuration is nil")
		}
		if metrics.ProvidersRegistered == nil {
			t.Error("ProvidersRegistered is nil")
		}
		if metrics.RateLimitedTotal == nil {
			t.Error("RateLimitedTotal is nil")
		}
	})

	t.Run("registering twice on the same registry panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_RecordLogin(t *testing.T) {
	t.Run("records success and failure outcomes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.RecordLogin("local", "LOCAL", true)
		metrics.RecordLogin("local", "LOCAL", false)
		metrics.RecordLogin("okta", "OIDC", true)

		expected := `
# HELP ssom_login_attempts_total Total number of login attempts
# TYPE ssom_login_attempts_total counter
ssom_login_attempts_total{outcome="failure",protocol="LOCAL",provider="local"} 1
ssom_login_attempts_total{outcome="success",protocol="LOCAL",provider="local"} 1
ssom_login_attempts_total{outcome="success",protocol="OIDC",provider="okta"} 1
`
		if err := testutil.CollectAndCompare(metrics.LoginAttemptsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_ProvidersRegistered(t *testing.T) {
	t.Run("tracks provider counts per protocol", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.ProvidersRegistered.WithLabelValues("OIDC").Set(2)
		metrics.ProvidersRegistered.WithLabelValues("SAML2").Set(1)

		expected := `
# HELP ssom_providers_registered Number of registered identity providers
# TYPE ssom_providers_registered gauge
ssom_providers_registered{protocol="OIDC"} 2
ssom_providers_registered{protocol="SAML2"} 1
`
		if err := testutil.CollectAndCompare(metrics.ProvidersRegistered, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records method, path and status", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/providers", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		expected := `
# HELP ssom_http_requests_total Total number of HTTP requests
# TYPE ssom_http_requests_total counter
ssom_http_requests_total{method="POST",path="/api/providers",status="201"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}

		if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
			t.Errorf("Expected 1 duration metric family, got %d", count)
		}
		if count := testutil.CollectAndCount(metrics.HTTPResponseSize); count != 1 {
			t.Errorf("Expected 1 response size metric family, got %d", count)
		}
	})

	t.Run("uses the path label function when given", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics, func(r *http.Request) string {
			return "/api/providers/{id}"
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/providers/abc-123", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		expected := `
# HELP ssom_http_requests_total Total number of HTTP requests
# TYPE ssom_http_requests_total counter
ssom_http_requests_total{method="GET",path="/api/providers/{id}",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	t.Run("serves prometheus exposition format", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)
		metrics.RecordLogin("local", "LOCAL", true)

		mux := http.NewServeMux()
		RegisterMetricsEndpoint(mux, registry)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "ssom_login_attempts_total") {
			t.Error("Expected login counter in metrics output")
		}
	})
}
