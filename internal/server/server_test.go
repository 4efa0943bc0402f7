package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snabb/remotezip"
)

type fakeArchive struct {
	listing *remotezip.Listing
	payload *remotezip.Payload
	err     error

	gotURL, gotPath string
}

func (f *fakeArchive) ListArchive(ctx context.Context, url string) (*remotezip.Listing, error) {
	f.gotURL = url
	return f.listing, f.err
}

func (f *fakeArchive) FetchEntry(ctx context.Context, url, path string) (*remotezip.Payload, error) {
	f.gotURL, f.gotPath = url, path
	return f.payload, f.err
}

func do(t *testing.T, archive Archive, method, path, body string, opts ...Option) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	New(archive, 1<<10, opts...).Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestFetchZip(t *testing.T) {
	archive := &fakeArchive{listing: &remotezip.Listing{
		Files: []remotezip.Node{
			&remotezip.Folder{Name: "docs", Path: "docs/", Children: []remotezip.Node{
				&remotezip.File{Name: "readme.txt", Entry: remotezip.Entry{
					Name: "docs/readme.txt", UncompressedSize: 12, CompressedSize: 12,
					Modified: remotezip.DOSTime{Year: 2001, Month: 4, Day: 3, Hour: 10, Minute: 30},
				}},
			}},
		},
		TotalArchiveSize: 200,
		TotalFileCount:   2,
	}}

	rec := do(t, archive, http.MethodPost, "/fetch-zip", `{"zipUrl":"https://example.com/a.zip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "https://example.com/a.zip", archive.gotURL)

	assert.JSONEq(t, `{
		"success": true,
		"totalSize": 200,
		"totalFiles": 2,
		"files": [{"name":"docs","type":"folder","children":[
			{"name":"readme.txt","type":"file","size":12,"compressedSize":12,
			 "date":"2001-04-03 10:30","encrypted":false,"compressionMethod":0}
		]}]
	}`, rec.Body.String())
}

func TestFetchZipEmptyArchive(t *testing.T) {
	rec := do(t, &fakeArchive{listing: &remotezip.Listing{TotalArchiveSize: 22}},
		http.MethodPost, "/fetch-zip", `{"zipUrl":"https://example.com/empty.zip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, rec)["files"])
}

func TestDownloadFile(t *testing.T) {
	archive := &fakeArchive{payload: &remotezip.Payload{
		Name: "root/docs/readme.txt", Data: []byte("hello world!"), OriginalSize: 12,
	}}

	rec := do(t, archive, http.MethodPost, "/download-file",
		`{"zipUrl":"https://example.com/a.zip","fileName":"docs/readme.txt"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "docs/readme.txt", archive.gotPath)

	m := decodeBody(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "docs/readme.txt", m["fileName"])
	assert.EqualValues(t, 12, m["originalSize"])
	assert.EqualValues(t, 12, m["downloadedSize"])
	data, err := base64.StdEncoding.DecodeString(m["fileData"].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		path, body, want string
	}{
		{"/fetch-zip", `{`, "invalid JSON request body"},
		{"/fetch-zip", `{}`, "ZIP URL is required"},
		{"/download-file", `{"zipUrl":"https://example.com/a.zip"}`, "ZIP URL and file name are required"},
		{"/download-file", `{"fileName":"a.txt"}`, "ZIP URL and file name are required"},
		{"/fetch-zip", `{"zipUrl":"` + strings.Repeat("x", 2<<10) + `"}`, "invalid JSON request body"},
	}
	for _, tt := range tests {
		archive := &fakeArchive{}
		rec := do(t, archive, http.MethodPost, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		assert.Equal(t, tt.want, decodeBody(t, rec)["error"], tt.body)
		assert.Empty(t, archive.gotURL, "archive not touched")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{&remotezip.Error{Kind: remotezip.KindNotFound, Msg: "file x.txt not found in archive"},
			http.StatusNotFound, "file x.txt not found in archive"},
		{&remotezip.Error{Kind: remotezip.KindTransport, Msg: "failed to get archive info: 403 Forbidden"},
			http.StatusBadGateway, "failed to get archive info: 403 Forbidden"},
		{remotezip.ErrMetadata, http.StatusBadGateway, "metadata error"},
		{remotezip.ErrTruncatedRange, http.StatusBadGateway, "truncated range"},
		{&remotezip.Error{Kind: remotezip.KindFormat, Msg: "EOCD not found"},
			http.StatusUnprocessableEntity, "EOCD not found"},
		{remotezip.ErrUnsupportedCompression, http.StatusUnprocessableEntity, "unsupported compression"},
		{remotezip.ErrDecompression, http.StatusUnprocessableEntity, "decompression error"},
		{errors.New("secret internal detail"), http.StatusInternalServerError, "failed to process ZIP file"},
	}
	for _, tt := range tests {
		rec := do(t, &fakeArchive{err: tt.err}, http.MethodPost, "/download-file",
			`{"zipUrl":"https://example.com/a.zip","fileName":"x.txt"}`)
		assert.Equal(t, tt.status, rec.Code, tt.msg)
		assert.Equal(t, tt.msg, decodeBody(t, rec)["error"])

		rec = do(t, &fakeArchive{err: tt.err}, http.MethodPost, "/fetch-zip",
			`{"zipUrl":"https://example.com/a.zip"}`)
		assert.Equal(t, tt.status, rec.Code, tt.msg)
	}
}

func TestCORSPreflight(t *testing.T) {
	archive := &fakeArchive{}
	rec := do(t, archive, http.MethodOptions, "/download-file", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, archive.gotURL)
}

func TestRoutes(t *testing.T) {
	rec := do(t, &fakeArchive{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, &fakeArchive{}, http.MethodGet, "/fetch-zip", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, &fakeArchive{}, http.MethodPost, "/unknown", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// recordingFetcher fails every call and remembers the URLs it was given.
type recordingFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *recordingFetcher) Size(ctx context.Context, url string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return 0, remotezip.ErrTransport
}

func (f *recordingFetcher) FetchRange(ctx context.Context, url string, start, end uint64) ([]byte, error) {
	return nil, remotezip.ErrTransport
}

func TestS3URLsNeedAllowedBucket(t *testing.T) {
	s3 := &recordingFetcher{}
	web := &recordingFetcher{}
	reader := remotezip.New(remotezip.NewRouter().
		Handle(web, "http", "https").
		Handle(s3, "s3"))

	for _, body := range []string{
		`{"zipUrl":"s3://any-bucket/private.zip"}`,
		`{"zipUrl":"S3://any-bucket/private.zip"}`,
		`{"zipUrl":"s3://public-zips"}`,
		`{"zipUrl":"ftp://example.com/a.zip"}`,
		`{"zipUrl":"file:///etc/passwd"}`,
		`{"zipUrl":"https:///a.zip"}`,
		`{"zipUrl":"not a url"}`,
	} {
		rec := do(t, reader, http.MethodPost, "/fetch-zip", body, WithS3Buckets("public-zips"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "unsupported ZIP URL", decodeBody(t, rec)["error"], body)
	}
	rec := do(t, reader, http.MethodPost, "/download-file",
		`{"zipUrl":"s3://any-bucket/private.zip","fileName":"a.txt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s3.urls, "s3 fetcher never reached")
	assert.Empty(t, web.urls)

	rec = do(t, reader, http.MethodPost, "/fetch-zip",
		`{"zipUrl":"s3://public-zips/a.zip"}`, WithS3Buckets("public-zips"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, []string{"s3://public-zips/a.zip"}, s3.urls)

	rec = do(t, reader, http.MethodPost, "/fetch-zip", `{"zipUrl":"https://example.com/a.zip"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, []string{"https://example.com/a.zip"}, web.urls)
}
