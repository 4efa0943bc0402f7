// Package metrics provides Prometheus metrics for the remotezip server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snabb/remotezip"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotezip_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotezip_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Archive operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotezip_operations_total",
			Help: "Archive operations by result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotezip_operation_duration_seconds",
			Help:    "Archive operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	entryBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remotezip_entry_bytes_served_total",
			Help: "Total uncompressed entry bytes returned to clients",
		},
	)

	// Range fetch metrics
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotezip_fetches_total",
			Help: "Remote fetches by backend, kind and result",
		},
		[]string{"backend", "kind", "result"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotezip_fetch_duration_seconds",
			Help:    "Remote fetch duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "kind"},
	)

	fetchedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotezip_fetched_bytes_total",
			Help: "Bytes read from remote archives",
		},
		[]string{"backend"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records a ListArchive or FetchEntry call. The result
// label is "ok" or the error kind.
func RecordOperation(operation string, duration time.Duration, err error) {
	operationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEntryBytes records uncompressed bytes returned to a client.
func RecordEntryBytes(n int) {
	entryBytesServed.Add(float64(n))
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return remotezip.KindOf(err).String()
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r), rw.status, time.Since(start))
	})
}

// routeLabel is the path of the ServeMux pattern that matched r, or
// "other" when none did.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	if pattern == "" {
		return "other"
	}
	return pattern
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrumentedFetcher records every call made to the wrapped fetcher.
type instrumentedFetcher struct {
	backend string
	next    remotezip.RangeFetcher
}

// InstrumentFetcher wraps f so its calls are counted and timed under the
// given backend label.
func InstrumentFetcher(backend string, f remotezip.RangeFetcher) remotezip.RangeFetcher {
	return &instrumentedFetcher{backend: backend, next: f}
}

func (f *instrumentedFetcher) Size(ctx context.Context, url string) (uint64, error) {
	start := time.Now()
	size, err := f.next.Size(ctx, url)
	f.record("size", start, err)
	return size, err
}

func (f *instrumentedFetcher) FetchRange(ctx context.Context, url string, first, last uint64) ([]byte, error) {
	start := time.Now()
	b, err := f.next.FetchRange(ctx, url, first, last)
	f.record("range", start, err)
	fetchedBytes.WithLabelValues(f.backend).Add(float64(len(b)))
	return b, err
}

func (f *instrumentedFetcher) record(kind string, start time.Time, err error) {
	fetchesTotal.WithLabelValues(f.backend, kind, resultLabel(err)).Inc()
	fetchDuration.WithLabelValues(f.backend, kind).Observe(time.Since(start).Seconds())
}
