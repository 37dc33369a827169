package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/loanledger/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		statusCode int
	}{
		{
			name:       "normalizes loan path",
			method:     http.MethodPost,
			path:       "/api/v1/loans/01HVZ8K3/repay",
			statusCode: http.StatusAccepted,
		},
		{
			name:       "keeps non-matching path as-is",
			method:     http.MethodGet,
			path:       "/health",
			statusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewWithRegisterer(prometheus.NewRegistry())

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(tc.statusCode)
			})

			req := httptest.NewRequest(tc.method, tc.path, nil)
			rr := httptest.NewRecorder()

			Metrics(m)(next).ServeHTTP(rr, req)

			if !handlerCalled {
				t.Fatalf("next handler was not invoked")
			}

			normalized := normalizePath(tc.path)
			counter := m.HTTPRequests.WithLabelValues(tc.method, normalized, strconv.Itoa(tc.statusCode))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected counter to be 1, got %v", got)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "listing path without suffix",
			input:    "/api/v1/listings/01HVZ8K3",
			expected: "/api/v1/listings/:id",
		},
		{
			name:     "listing path with suffix",
			input:    "/api/v1/listings/01HVZ8K3/fund",
			expected: "/api/v1/listings/:id/fund",
		},
		{
			name:     "loan path",
			input:    "/api/v1/loans/01HVZ8K3/confirm-funding",
			expected: "/api/v1/loans/:id/confirm-funding",
		},
		{
			name:     "credit address",
			input:    "/api/v1/credit/9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
			expected: "/api/v1/credit/:address",
		},
		{
			name:     "collection",
			input:    "/api/v1/listings",
			expected: "/api/v1/listings",
		},
		{
			name:     "non-matching path",
			input:    "/api/v1/quotes/repayment",
			expected: "/api/v1/quotes/repayment",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizePath(tc.input); got != tc.expected {
				t.Fatalf("normalizePath(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}
