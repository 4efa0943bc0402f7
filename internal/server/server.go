// Package server exposes the archive reader over HTTP with JSON requests
// and responses. Entry content is sent base64 encoded.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snabb/remotezip"
	"github.com/snabb/remotezip/internal/logging"
	"github.com/snabb/remotezip/internal/metrics"
	"github.com/snabb/remotezip/pkg/s3range"
)

// Archive is the part of *remotezip.Reader used by the server.
type Archive interface {
	ListArchive(ctx context.Context, url string) (*remotezip.Listing, error)
	FetchEntry(ctx context.Context, url, path string) (*remotezip.Payload, error)
}

// Server handles the archive HTTP API.
type Server struct {
	archive      Archive
	maxBodyBytes int64
	s3Buckets    map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithS3Buckets lets clients read s3:// URLs in the given buckets. Without
// it every s3:// URL is rejected, since the fetcher reads with the
// server's own credentials.
func WithS3Buckets(buckets ...string) Option {
	return func(s *Server) {
		for _, b := range buckets {
			s.s3Buckets[b] = true
		}
	}
}

// New creates a Server. maxBodyBytes limits the size of JSON request
// bodies. Only http and https archive URLs are accepted unless
// WithS3Buckets is given.
func New(archive Archive, maxBodyBytes int64, opts ...Option) *Server {
	s := &Server{
		archive:      archive,
		maxBodyBytes: maxBodyBytes,
		s3Buckets:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with logging, metrics and CORS
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fetch-zip", s.handleList)
	mux.HandleFunc("POST /download-file", s.handleDownload)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return logging.Middleware(metrics.Middleware(cors(mux)))
}

type listRequest struct {
	ZipURL string `json:"zipUrl"`
}

type listResponse struct {
	Success    bool             `json:"success"`
	Files      []remotezip.Node `json:"files"`
	TotalSize  uint64           `json:"totalSize"`
	TotalFiles uint32           `json:"totalFiles"`
	Comment    string           `json:"comment,omitempty"`
}

type downloadRequest struct {
	ZipURL   string `json:"zipUrl"`
	FileName string `json:"fileName"`
}

type downloadResponse struct {
	Success        bool   `json:"success"`
	FileData       string `json:"fileData"`
	FileName       string `json:"fileName"`
	OriginalSize   uint64 `json:"originalSize"`
	DownloadedSize int    `json:"downloadedSize"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ZipURL == "" {
		writeError(w, http.StatusBadRequest, "ZIP URL is required")
		return
	}
	if !s.allowedURL(req.ZipURL) {
		writeError(w, http.StatusBadRequest, "unsupported ZIP URL")
		return
	}

	logger := logging.WithContext(r.Context())
	logger.Info("listing archive", zap.String("url", req.ZipURL))

	start := time.Now()
	listing, err := s.archive.ListArchive(r.Context(), req.ZipURL)
	metrics.RecordOperation("list", time.Since(start), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	files := listing.Files
	if files == nil {
		files = []remotezip.Node{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Files:      files,
		TotalSize:  listing.TotalArchiveSize,
		TotalFiles: listing.TotalFileCount,
		Comment:    listing.Comment,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ZipURL == "" || req.FileName == "" {
		writeError(w, http.StatusBadRequest, "ZIP URL and file name are required")
		return
	}
	if !s.allowedURL(req.ZipURL) {
		writeError(w, http.StatusBadRequest, "unsupported ZIP URL")
		return
	}

	logger := logging.WithContext(r.Context())
	logger.Info("downloading entry", zap.String("url", req.ZipURL), zap.String("file", req.FileName))

	start := time.Now()
	payload, err := s.archive.FetchEntry(r.Context(), req.ZipURL, req.FileName)
	metrics.RecordOperation("fetch", time.Since(start), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.RecordEntryBytes(len(payload.Data))

	writeJSON(w, http.StatusOK, downloadResponse{
		Success:        true,
		FileData:       base64.StdEncoding.EncodeToString(payload.Data),
		FileName:       req.FileName,
		OriginalSize:   payload.OriginalSize,
		DownloadedSize: len(payload.Data),
	})
}

// allowedURL accepts http and https URLs, and s3 URLs in an allowed
// bucket.
func (s *Server) allowedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "s3":
		bucket, _, err := s3range.ParseURL(rawURL)
		return err == nil && s.s3Buckets[bucket]
	}
	return false
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// fail maps a reader error to a status code. The message of a
// *remotezip.Error is safe to show; anything else is logged only.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	logging.WithContext(r.Context()).Warn("archive request failed",
		zap.Stringer("kind", remotezip.KindOf(err)), zap.Error(err))

	msg := "failed to process ZIP file"
	if remotezip.KindOf(err) != remotezip.KindUnknown {
		msg = err.Error()
	}
	writeError(w, statusFor(err), msg)
}

func statusFor(err error) int {
	switch remotezip.KindOf(err) {
	case remotezip.KindNotFound:
		return http.StatusNotFound
	case remotezip.KindTransport, remotezip.KindMetadata, remotezip.KindTruncatedRange:
		return http.StatusBadGateway
	case remotezip.KindFormat, remotezip.KindUnsupportedCompression, remotezip.KindDecompression:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
