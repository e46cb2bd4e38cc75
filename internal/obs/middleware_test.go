package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bonafide55/shop-api/internal/common"
)

func TestHTTPMetricsUseMatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("shop", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(HTTPObs{Metrics: metrics}.Middleware)
	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products/{slug}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/strat", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/products/{slug}", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestRouteOverride(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	require.Equal(t, "unknown", Route(req))
	req = req.WithContext(WithRoute(req.Context(), "/health/ready"))
	require.Equal(t, "/health/ready", Route(req))
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewHTTPMetrics("shop", nil, registry)
	second := NewHTTPMetrics("shop", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 10, 250}, ParseBucketsCSV(" 250,5,abc,-1,10,5 "))
	require.Empty(t, ParseBucketsCSV(""))
}

func TestDomainMetricsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegisterDomainMetrics("shop", registry)
	require.NotNil(t, PricingCalculationsTotal)
	require.NotNil(t, OrdersCreatedTotal)
	require.NotNil(t, BansTotal)

	ThrottleRejectionsTotal.WithLabelValues("anon").Inc()
	require.GreaterOrEqual(t, testutil.ToFloat64(ThrottleRejectionsTotal.WithLabelValues("anon")), 1.0)
}

func TestRequestLoggerLevelsAndShopper(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.WithShopper(r.Context(), "tg_1")
		w.WriteHeader(http.StatusConflict)
	})
	rr := httptest.NewRecorder()
	RequestLogger{Logger: logger}.Middleware(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "tg_1", line["shopper"])
	require.EqualValues(t, 409, line["status"])
}

func TestRequestLoggerProbesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	RequestLogger{Logger: logger}.Middleware(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Zero(t, buf.Len())
}
