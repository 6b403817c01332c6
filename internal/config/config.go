// Package config reads embedmark settings from flags with EMBEDMARK_*
// environment fallbacks.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/transform"
)

// Config holds all runtime configuration for embedmark.
type Config struct {
	Listen        string
	FetchTimeout  time.Duration
	MaxBodySize   int64
	MaxInputSize  int64
	CacheTTL      time.Duration
	CacheMaxSize  int64
	Transform     transform.Options
	Discovery     bool
	ProvidersFile string
	TLSSkipVerify bool
	LogLevel      slog.Level
	Page          bool
	Version       bool

	// Args are the positional arguments left after flag parsing.
	Args []string
}

// Parse reads configuration from CLI flags with environment variable fallback.
func Parse(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	cfg := &Config{}
	defaults := transform.DefaultOptions()

	fs.StringVar(&cfg.Listen, "listen", envOr("EMBEDMARK_LISTEN", "127.0.0.1:8080"), "Listen address for serve")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", envDurationOr("EMBEDMARK_FETCH_TIMEOUT", 10*time.Second), "Upstream HTTP timeout")
	maxBodySize := fs.String("max-body-size", envOr("EMBEDMARK_MAX_BODY_SIZE", "1MB"), "Max oEmbed response size (e.g. 1MB)")
	maxInputSize := fs.String("max-input-size", envOr("EMBEDMARK_MAX_INPUT_SIZE", "5MB"), "Max markdown input size (e.g. 5MB)")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", envDurationOr("EMBEDMARK_CACHE_TTL", time.Hour), "oEmbed response cache TTL")
	cacheMaxSize := fs.String("cache-max-size", envOr("EMBEDMARK_CACHE_MAX_SIZE", "32MB"), "Max cache size (e.g. 32MB)")
	fs.IntVar(&cfg.Transform.Concurrency, "concurrency", envIntOr("EMBEDMARK_CONCURRENCY", defaults.Concurrency), "Max parallel oEmbed resolutions per document")
	fs.DurationVar(&cfg.Transform.Timeout, "resolve-timeout", envDurationOr("EMBEDMARK_RESOLVE_TIMEOUT", defaults.Timeout), "Timeout for one oEmbed resolution")
	fs.BoolVar(&cfg.Transform.SyncWidget, "sync-widget", envBoolOr("EMBEDMARK_SYNC_WIDGET", false), "Inline widget HTML instead of lazy placeholders")
	fs.BoolVar(&cfg.Transform.AsyncImg, "async-img", envBoolOr("EMBEDMARK_ASYNC_IMG", false), "Render photo embeds with lazy loading")
	fs.BoolVar(&cfg.Transform.JSX, "jsx", envBoolOr("EMBEDMARK_JSX", false), "Emit JSX-compatible markup")
	fs.BoolVar(&cfg.Transform.Sanitize, "sanitize", envBoolOr("EMBEDMARK_SANITIZE", false), "Sanitize provider HTML")
	fs.BoolVar(&cfg.Discovery, "discovery", envBoolOr("EMBEDMARK_DISCOVERY", false), "Discover oEmbed endpoints for unknown hosts")
	fs.StringVar(&cfg.ProvidersFile, "providers", envOr("EMBEDMARK_PROVIDERS", ""), "YAML file of extra provider rules")
	fs.BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", envBoolOr("EMBEDMARK_TLS_SKIP_VERIFY", false), "Disable TLS certificate verification for upstream fetches")
	logLevel := fs.String("log-level", envOr("EMBEDMARK_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Page, "page", false, "Wrap rendered output in a standalone HTML page")
	fs.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = fs.Args()

	var err error
	if cfg.MaxBodySize, err = parseByteSize(*maxBodySize); err != nil {
		return nil, fmt.Errorf("parse max-body-size: %w", err)
	}
	if cfg.MaxInputSize, err = parseByteSize(*maxInputSize); err != nil {
		return nil, fmt.Errorf("parse max-input-size: %w", err)
	}
	if cfg.CacheMaxSize, err = parseByteSize(*cacheMaxSize); err != nil {
		return nil, fmt.Errorf("parse cache-max-size: %w", err)
	}
	if cfg.LogLevel, err = logging.ParseLevel(*logLevel); err != nil {
		return nil, err
	}

	if cfg.Transform.Concurrency < 1 {
		return nil, fmt.Errorf("invalid concurrency %d: must be at least 1", cfg.Transform.Concurrency)
	}
	if cfg.Transform.Timeout <= 0 || cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}
	if cfg.MaxBodySize <= 0 || cfg.MaxInputSize <= 0 {
		return nil, fmt.Errorf("size limits must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return v == "1" || v == "true" || v == "yes"
	}
	return fallback
}

// parseByteSize parses a human-readable byte size like "100MB", "5KB", "1GB".
func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty size string")
	}

	i := 0
	for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.') {
		i++
	}

	numStr := s[:i]
	unit := s[i:]

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	var multiplier int64
	switch unit {
	case "", "B":
		multiplier = 1
	case "KB", "kb":
		multiplier = 1024
	case "MB", "mb":
		multiplier = 1024 * 1024
	case "GB", "gb":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size unit %q in %q", unit, s)
	}

	return int64(num * float64(multiplier)), nil
}
