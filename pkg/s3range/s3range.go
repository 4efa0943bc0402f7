// Package s3range implements remotezip.RangeFetcher for objects in S3 or
// S3 compatible storage (MinIO), addressed as s3://bucket/key.
package s3range

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/snabb/remotezip"
	"github.com/snabb/remotezip/pkg/contentrange"
)

// Config holds S3 connection settings. Endpoint, AccessKey and
// SecretKey are optional; without them the default AWS endpoint and
// credential chain are used.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// API is the part of *s3.Client used by Fetcher.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher reads byte ranges of S3 objects. It is safe for concurrent
// use.
type Fetcher struct {
	client API
}

var _ remotezip.RangeFetcher = (*Fetcher)(nil)

// New creates a Fetcher with a client built from cfg.
func New(ctx context.Context, cfg Config) (*Fetcher, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		}
	})
	return NewWithClient(client), nil
}

// NewWithClient creates a Fetcher using an existing client.
func NewWithClient(client API) *Fetcher {
	return &Fetcher{client: client}
}

// Size returns the object size from a HeadObject call.
func (f *Fetcher) Size(ctx context.Context, rawURL string) (uint64, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return 0, err
	}
	out, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, &remotezip.Error{Kind: remotezip.KindTransport,
			Msg: fmt.Sprintf("head object %s", key), Err: err}
	}
	if out.ContentLength == nil || *out.ContentLength <= 0 {
		return 0, &remotezip.Error{Kind: remotezip.KindMetadata,
			Msg: "could not determine archive size"}
	}
	return uint64(*out.ContentLength), nil
}

// FetchRange reads bytes [start, end] with a ranged GetObject call.
func (f *Fetcher) FetchRange(ctx context.Context, rawURL string, start, end uint64) ([]byte, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rangeStr, err := contentrange.Header(start, end)
	if err != nil {
		return nil, &remotezip.Error{Kind: remotezip.KindFormat, Msg: "invalid byte range", Err: err}
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		return nil, &remotezip.Error{Kind: remotezip.KindTransport,
			Msg: fmt.Sprintf("get object %s", key), Err: err}
	}
	defer out.Body.Close()

	want := end - start + 1
	p := make([]byte, want)
	n, err := io.ReadFull(out.Body, p)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, &remotezip.Error{Kind: remotezip.KindTruncatedRange,
			Msg: fmt.Sprintf("short response for bytes %d-%d: got %d of %d bytes", start, end, n, want)}
	}
	if err != nil {
		return nil, &remotezip.Error{Kind: remotezip.KindTransport,
			Msg: fmt.Sprintf("read object %s", key), Err: err}
	}
	return p, nil
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", &remotezip.Error{Kind: remotezip.KindTransport, Msg: "invalid archive url", Err: err}
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", &remotezip.Error{Kind: remotezip.KindTransport,
			Msg: fmt.Sprintf("not an s3://bucket/key url: %q", rawURL)}
	}
	return u.Host, key, nil
}
