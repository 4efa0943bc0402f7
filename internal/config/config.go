// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server and client configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string

	// Remote fetching
	HTTPTimeout time.Duration
	UserAgent   string

	// S3 (optional, enables s3:// archive URLs)
	S3Enabled   bool
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	// S3AllowedBuckets lists the buckets API clients may read. The CLI is
	// not restricted.
	S3AllowedBuckets []string

	// Limits
	MaxRequestBytes int64
	MaxEntryBytes   int64
}

// Load reads configuration from environment variables with defaults. A
// .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		LogOutput:        envOr("LOG_OUTPUT", "stderr"),
		HTTPTimeout:      envDuration("HTTP_TIMEOUT", 30*time.Second),
		UserAgent:        envOr("USER_AGENT", "remotezip/1.0"),
		S3Enabled:        envBool("S3_ENABLED", false),
		S3Endpoint:       envOr("S3_ENDPOINT", ""),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:      envOr("S3_SECRET_KEY", ""),
		S3AllowedBuckets: envList("S3_ALLOWED_BUCKETS"),
		MaxRequestBytes:  envInt64("MAX_REQUEST_BYTES", 64*1024), // JSON request bodies
		MaxEntryBytes:    envInt64("MAX_ENTRY_BYTES", 100<<20),   // uncompressed, 0 disables
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if cfg.MaxRequestBytes <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BYTES must be positive")
	}
	if cfg.MaxEntryBytes < 0 {
		return nil, fmt.Errorf("MAX_ENTRY_BYTES must not be negative")
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("S3_SECRET_KEY is required with S3_ACCESS_KEY")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envList splits a comma separated value, dropping empty items.
func envList(key string) []string {
	var list []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
