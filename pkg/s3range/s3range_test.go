package s3range

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snabb/remotezip"
)

// fakeS3 serves a single in-memory object and records the ranges asked
// for.
type fakeS3 struct {
	bucket, key string
	data        []byte
	short       bool
	ranges      []string
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket || aws.ToString(in.Key) != f.key {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket || aws.ToString(in.Key) != f.key {
		return nil, errors.New("NoSuchKey")
	}
	rng := aws.ToString(in.Range)
	f.ranges = append(f.ranges, rng)

	bounds := strings.SplitN(strings.TrimPrefix(rng, "bytes="), "-", 2)
	first, _ := strconv.Atoi(bounds[0])
	last, _ := strconv.Atoi(bounds[1])
	if last >= len(f.data) {
		last = len(f.data) - 1
	}
	body := f.data[first : last+1]
	if f.short {
		body = body[:len(body)/2]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestFetcher(t *testing.T) {
	api := &fakeS3{bucket: "archives", key: "nested/file.zip", data: []byte("0123456789")}
	f := NewWithClient(api)
	ctx := context.Background()

	size, err := f.Size(ctx, "s3://archives/nested/file.zip")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	b, err := f.FetchRange(ctx, "s3://archives/nested/file.zip", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(b))
	assert.Equal(t, []string{"bytes=2-5"}, api.ranges)

	_, err = f.Size(ctx, "s3://archives/other.zip")
	assert.ErrorIs(t, err, remotezip.ErrTransport)

	_, err = f.FetchRange(ctx, "s3://archives/other.zip", 0, 1)
	assert.ErrorIs(t, err, remotezip.ErrTransport)

	_, err = f.FetchRange(ctx, "s3://archives/nested/file.zip", 5, 2)
	assert.ErrorIs(t, err, remotezip.ErrFormat)
}

func TestFetcherShortBody(t *testing.T) {
	api := &fakeS3{bucket: "b", key: "k.zip", data: []byte("0123456789"), short: true}

	_, err := NewWithClient(api).FetchRange(context.Background(), "s3://b/k.zip", 0, 9)
	assert.ErrorIs(t, err, remotezip.ErrTruncatedRange)
}

func TestFetcherEmptyObject(t *testing.T) {
	api := &fakeS3{bucket: "b", key: "k.zip"}

	_, err := NewWithClient(api).Size(context.Background(), "s3://b/k.zip")
	assert.ErrorIs(t, err, remotezip.ErrMetadata)
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://archives/a/b/c.zip")
	require.NoError(t, err)
	assert.Equal(t, "archives", bucket)
	assert.Equal(t, "a/b/c.zip", key)

	for _, bad := range []string{
		"https://archives/a.zip",
		"s3:///a.zip",
		"s3://archives",
		"s3://archives/",
		"://",
	} {
		_, _, err := ParseURL(bad)
		assert.ErrorIs(t, err, remotezip.ErrTransport, bad)
	}
}

func TestReaderOverS3(t *testing.T) {
	// smallest valid archive: an EOCD record with no entries
	eocd := []byte{'P', 'K', 5, 6, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	api := &fakeS3{bucket: "b", key: "empty.zip", data: eocd}

	listing, err := remotezip.New(NewWithClient(api)).ListArchive(context.Background(), "s3://b/empty.zip")
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
	assert.EqualValues(t, 22, listing.TotalArchiveSize)
	assert.Equal(t, []string{"bytes=0-21"}, api.ranges)
}
