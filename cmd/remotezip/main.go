// Command remotezip lists and extracts files of remote ZIP archives
// without downloading the whole archive, or serves the same over HTTP.
//
//	remotezip ls <url>
//	remotezip tree <url>
//	remotezip cat <url> <path>
//	remotezip serve
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/snabb/remotezip"
	"github.com/snabb/remotezip/internal/config"
	"github.com/snabb/remotezip/internal/logging"
	"github.com/snabb/remotezip/internal/metrics"
	"github.com/snabb/remotezip/internal/server"
	"github.com/snabb/remotezip/pkg/s3range"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  remotezip ls <url>          list archive entries
  remotezip tree <url>        print the archive tree as JSON
  remotezip cat <url> <path>  write one entry to stdout
  remotezip serve             run the HTTP API`)
	flag.PrintDefaults()
}

func main() {
	verbose := flag.Bool("v", false, "log fetches to stderr")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.LogLevel = "debug"
		cfg.LogFormat = "console"
	}
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		logging.L().Fatal("fetcher setup failed", zap.Error(err))
	}
	reader := remotezip.New(fetcher,
		remotezip.WithLogger(logging.L()),
		remotezip.WithMaxEntrySize(uint64(cfg.MaxEntryBytes)))

	switch {
	case args[0] == "ls" && len(args) == 2:
		err = listEntries(ctx, reader, args[1], os.Stdout)
	case args[0] == "tree" && len(args) == 2:
		err = printTree(ctx, reader, args[1], os.Stdout)
	case args[0] == "cat" && len(args) == 3:
		err = catEntry(ctx, reader, args[1], args[2], os.Stdout)
	case args[0] == "serve" && len(args) == 1:
		err = serve(ctx, cfg, reader)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "remotezip:", err)
		if remotezip.KindOf(err) == remotezip.KindNotFound {
			os.Exit(3)
		}
		os.Exit(2)
	}
}

// newFetcher routes http(s) URLs to an HTTP fetcher and, when enabled,
// s3 URLs to an S3 fetcher. Both are instrumented.
func newFetcher(ctx context.Context, cfg *config.Config) (remotezip.RangeFetcher, error) {
	header := http.Header{}
	header.Set("User-Agent", cfg.UserAgent)
	client := &http.Client{Timeout: cfg.HTTPTimeout}

	router := remotezip.NewRouter()
	router.Handle(metrics.InstrumentFetcher("http",
		remotezip.NewHTTPFetcher(client, header)), "http", "https")

	if cfg.S3Enabled {
		s3f, err := s3range.New(ctx, s3range.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		router.Handle(metrics.InstrumentFetcher("s3", s3f), "s3")
	}
	return router, nil
}

func listEntries(ctx context.Context, reader *remotezip.Reader, url string, w io.Writer) error {
	entries, err := reader.Entries(ctx, url)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	header := []string{"Method", "CRC32", "Compressed", "Size", "Modified", "Name"}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, e := range entries {
		method := strconv.Itoa(int(e.Method))
		switch e.Method {
		case remotezip.Store:
			method = "store"
		case remotezip.Deflate:
			method = "deflate"
		}
		name := e.Name
		if e.Encrypted {
			name += " (encrypted)"
		}
		info := []string{
			method,
			fmt.Sprintf("%08x", e.CRC32),
			strconv.FormatUint(uint64(e.CompressedSize), 10),
			strconv.FormatUint(uint64(e.UncompressedSize), 10),
			e.Modified.String(),
			name,
		}
		fmt.Fprintln(tw, strings.Join(info, "\t"))
	}
	return nil
}

func printTree(ctx context.Context, reader *remotezip.Reader, url string, w io.Writer) error {
	listing, err := reader.ListArchive(ctx, url)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listing)
}

func catEntry(ctx context.Context, reader *remotezip.Reader, url, path string, w io.Writer) error {
	payload, err := reader.FetchEntry(ctx, url, path)
	if err != nil {
		return err
	}
	_, err = w.Write(payload.Data)
	return err
}

func serve(ctx context.Context, cfg *config.Config, reader *remotezip.Reader) error {
	log := logging.L()
	if cfg.S3Enabled && len(cfg.S3AllowedBuckets) == 0 {
		log.Warn("S3_ENABLED without S3_ALLOWED_BUCKETS, the API rejects all s3:// URLs")
	}
	srv := server.New(reader, cfg.MaxRequestBytes, server.WithS3Buckets(cfg.S3AllowedBuckets...))

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		log.Info("api server listening", zap.String("addr", cfg.ListenAddr))
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	return err
}
