package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("storefront", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	total := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/health/ready", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	if samples := testutil.CollectAndCount(metrics.Latency); samples == 0 {
		t.Fatalf("expected histogram sample")
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("storefront", nil, registry)
	second := obs.NewHTTPMetrics("storefront", nil, registry)
	if first.Requests != second.Requests {
		t.Fatalf("expected registered collector to be reused")
	}
}

func TestRequestLoggerUsesRoutePatternAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/checkout/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		zerolog.Ctx(req.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", "u-42")
		})
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/orders/abc", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["route"] != "/api/v1/checkout/orders/{id}" {
		t.Fatalf("unexpected route %v", entry["route"])
	}
	if entry["user_id"] != "u-42" {
		t.Fatalf("expected user_id from context logger, got %v", entry["user_id"])
	}
	if entry["message"] != "http_request" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
}

func TestCheckoutMetricsNilSafe(t *testing.T) {
	var m *obs.CheckoutMetrics
	m.Preview("ok", 10)
	m.IneligibleVoucher("expired")
	m.OrderSubmitted("ok")
	m.DirectoryLookup("cache")

	registry := prometheus.NewRegistry()
	m = obs.NewCheckoutMetrics("storefront", registry)
	m.Preview("ok", 40_000)
	if got := testutil.ToFloat64(m.Previews.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected one preview, got %v", got)
	}
}

func TestHTTPMetricsUnmatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("storefront", nil, registry)
	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "unknown", "404")); got != 1 {
		t.Fatalf("expected unmatched path under the unknown route, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/health/live", "200")); got != 1 {
		t.Fatalf("expected live probe counted by pattern, got %v", got)
	}
}

func TestParseBucketsCSV(t *testing.T) {
	got := obs.ParseBucketsCSV(" 50, bogus,10,-1,,250 ")
	want := []float64{50, 10, 250}
	if len(got) != len(want) {
		t.Fatalf("unexpected buckets %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected buckets %v", got)
		}
	}
	if obs.ParseBucketsCSV("") != nil {
		t.Fatal("expected nil buckets for blank input")
	}
}
