package remotezip

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/snabb/remotezip/pkg/contentrange"
)

// RangeFetcher reads byte ranges of a remote object. Implementations
// must be safe for concurrent use and must not retry.
type RangeFetcher interface {
	// Size returns the total size of the object at url.
	Size(ctx context.Context, url string) (uint64, error)
	// FetchRange returns bytes [start, end] (both inclusive) of the
	// object at url.
	FetchRange(ctx context.Context, url string, start, end uint64) ([]byte, error)
}

// HTTPFetcher is a RangeFetcher that makes HTTP HEAD and Range requests.
// It is safe for concurrent use.
type HTTPFetcher struct {
	client *http.Client
	header http.Header
}

var _ RangeFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a new HTTPFetcher. If nil is passed as
// http.Client, then http.DefaultClient is used. The supplied header is
// copied into every request, it may be nil.
func NewHTTPFetcher(client *http.Client, header http.Header) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client: client,
		header: cloneHeader(header),
	}
}

// Size asks for the object size with a HEAD request. If the server does
// not report Content-Length, a one byte Range Request is made and the
// complete length is taken from its Content-Range header.
func (hf *HTTPFetcher) Size(ctx context.Context, url string) (uint64, error) {
	req, err := hf.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	resp, err := hf.client.Do(req)
	if err != nil {
		return 0, wrapError(KindTransport, err, "failed to get archive info")
	}
	resp.Body.Close()

	var size int64
	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		size, err = hf.probeSize(ctx, url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return 0, newError(KindTransport, "failed to get archive info: %s", resp.Status)
	case resp.ContentLength < 0:
		size, err = hf.probeSize(ctx, url)
	default:
		size = resp.ContentLength
	}
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, newError(KindMetadata, "could not determine archive size")
	}
	return uint64(size), nil
}

// probeSize makes a 1 byte Range Request to learn the complete length.
func (hf *HTTPFetcher) probeSize(ctx context.Context, url string) (int64, error) {
	resp, err := hf.get(ctx, url, 0, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	size := responseSize(resp)
	if size < 0 {
		return 0, newError(KindTransport, "server did not report archive size")
	}
	return size, nil
}

// FetchRange makes a Range Request for bytes [start, end]. A server that
// ignores the Range header and answers 200 is tolerated: the requested
// window is cut out of the full body.
func (hf *HTTPFetcher) FetchRange(ctx context.Context, url string, start, end uint64) ([]byte, error) {
	if end < start {
		return nil, newError(KindFormat, "invalid byte range %d-%d", start, end)
	}
	resp, err := hf.get(ctx, url, start, end)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	want := end - start + 1
	body := io.Reader(resp.Body)

	if resp.StatusCode == http.StatusOK {
		if _, err := io.CopyN(io.Discard, body, int64(start)); err != nil {
			return nil, wrapError(KindTruncatedRange, err,
				"short response for bytes %d-%d", start, end)
		}
	} else {
		contentRange := resp.Header.Get("Content-Range")
		if contentRange == "" {
			return nil, newError(KindTransport, "no content-range header in partial response")
		}
		cr, err := contentrange.ParseRange(contentRange)
		if err != nil {
			return nil, wrapError(KindTransport, err, "http request error")
		}
		if cr.First != int64(start) || cr.Last > int64(end) {
			return nil, newError(KindTransport,
				"received different range than requested (req=%d-%d, resp=%d-%d)",
				start, end, cr.First, cr.Last)
		}
		if resp.ContentLength > int64(want) {
			return nil, newError(KindTruncatedRange, "content-length mismatch in http response")
		}
	}

	p := make([]byte, want)
	n, err := io.ReadFull(body, p)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, newError(KindTruncatedRange,
			"short response for bytes %d-%d: got %d of %d bytes", start, end, n, want)
	}
	if err != nil {
		return nil, wrapError(KindTransport, err, "http read error")
	}
	return p, nil
}

func (hf *HTTPFetcher) get(ctx context.Context, url string, first, last uint64) (*http.Response, error) {
	req, err := hf.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	reqRange, err := contentrange.Header(first, last)
	if err != nil {
		return nil, wrapError(KindFormat, err, "invalid byte range")
	}
	req.Header.Set("Range", reqRange)

	resp, err := hf.client.Do(req)
	if err != nil {
		return nil, wrapError(KindTransport, err, "http request error")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, newError(KindTransport, "http request error: %s", resp.Status)
	}
	return resp, nil
}

func (hf *HTTPFetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, wrapError(KindTransport, errors.WithStack(err), "invalid archive url")
	}
	for k, vv := range hf.header {
		req.Header[k] = append([]string(nil), vv...)
	}
	return req, nil
}

func cloneHeader(h http.Header) http.Header {
	h2 := make(http.Header, len(h))
	for k, vv := range h {
		vv2 := make([]string, len(vv))
		copy(vv2, vv)
		h2[k] = vv2
	}
	return h2
}

// responseSize returns the complete object length reported by resp, or
// -1 if it is unknown.
func responseSize(resp *http.Response) int64 {
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.ContentLength
	case http.StatusPartialContent:
		if contentRange := resp.Header.Get("Content-Range"); contentRange != "" {
			_, _, length, err := contentrange.Parse(contentRange)
			if err == nil {
				return length
			}
		}
	}
	return -1
}
