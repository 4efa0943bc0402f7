package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snabb/remotezip"
)

type stubFetcher struct {
	data []byte
	err  error
}

func (s *stubFetcher) Size(ctx context.Context, url string) (uint64, error) {
	return uint64(len(s.data)), s.err
}

func (s *stubFetcher) FetchRange(ctx context.Context, url string, first, last uint64) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data[first : last+1], nil
}

func TestInstrumentFetcher(t *testing.T) {
	f := InstrumentFetcher("test_ok", &stubFetcher{data: []byte("0123456789")})

	size, err := f.Size(context.Background(), "http://example.com/a.zip")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	b, err := f.FetchRange(context.Background(), "http://example.com/a.zip", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), b)

	assert.Equal(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues("test_ok", "size", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues("test_ok", "range", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(fetchedBytes.WithLabelValues("test_ok")))
}

func TestInstrumentFetcherErrorKind(t *testing.T) {
	f := InstrumentFetcher("test_err", &stubFetcher{err: remotezip.ErrTransport})

	_, err := f.FetchRange(context.Background(), "http://example.com/a.zip", 0, 1)
	assert.ErrorIs(t, err, remotezip.ErrTransport)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		fetchesTotal.WithLabelValues("test_err", "range", remotezip.KindTransport.String())))
}

func TestRecordOperation(t *testing.T) {
	RecordOperation("test_list", time.Millisecond, nil)
	RecordOperation("test_list", time.Millisecond, &remotezip.Error{Kind: remotezip.KindNotFound})

	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("test_list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("test_list", "not found")))
}

func TestMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /test-middleware/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/test-middleware/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/test-middleware/2", nil))
	assert.Equal(t, 2.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues(http.MethodPost, "/test-middleware/{id}", "202")))

	// unmatched paths share one series
	for _, path := range []string{"/stray-a", "/stray-b", "/stray-c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, path, nil))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues(http.MethodPut, "other", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues(http.MethodPut, "/stray-a", "404")))
}
