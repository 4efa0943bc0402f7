package remotezip

import (
	"context"
	"net/url"
	"strings"
)

// Router is a RangeFetcher that dispatches on the URL scheme, e.g.
// "https" to an HTTPFetcher and "s3" to an S3 fetcher.
type Router struct {
	fetchers map[string]RangeFetcher
}

var _ RangeFetcher = (*Router)(nil)

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{fetchers: make(map[string]RangeFetcher)}
}

// Handle registers f for the given URL schemes. It is not safe to call
// Handle concurrently with Size or FetchRange.
func (rt *Router) Handle(f RangeFetcher, schemes ...string) *Router {
	for _, s := range schemes {
		rt.fetchers[strings.ToLower(s)] = f
	}
	return rt
}

func (rt *Router) Size(ctx context.Context, rawURL string) (uint64, error) {
	f, err := rt.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.Size(ctx, rawURL)
}

func (rt *Router) FetchRange(ctx context.Context, rawURL string, start, end uint64) ([]byte, error) {
	f, err := rt.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.FetchRange(ctx, rawURL, start, end)
}

func (rt *Router) route(rawURL string) (RangeFetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, wrapError(KindTransport, err, "invalid archive url")
	}
	f, ok := rt.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, newError(KindTransport, "unsupported url scheme %q", u.Scheme)
	}
	return f, nil
}
