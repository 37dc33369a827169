package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iho/loanledger/internal/infrastructure/metrics"
)

// Metrics records request counts and latencies on m.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &metricsRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

type metricsRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *metricsRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// idSegments maps a collection to the placeholder for the segment after it.
var idSegments = map[string]string{
	"listings": ":id",
	"loans":    ":id",
	"credit":   ":address",
}

// normalizePath replaces IDs and addresses to keep label cardinality low.
// /api/v1/loans/01HV.../repay -> /api/v1/loans/:id/repay
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}

	// "", "api", "v1", collection, id, ...
	parts := strings.Split(path, "/")
	if len(parts) < 5 || parts[4] == "" {
		return path
	}
	if placeholder, ok := idSegments[parts[3]]; ok {
		parts[4] = placeholder
	}
	return strings.Join(parts, "/")
}
