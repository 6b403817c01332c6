package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/air-gapped/embedmark/internal/cache"
	"github.com/air-gapped/embedmark/internal/config"
	"github.com/air-gapped/embedmark/internal/fetch"
	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/metrics"
	"github.com/air-gapped/embedmark/internal/provider"
	"github.com/air-gapped/embedmark/internal/render"
	"github.com/air-gapped/embedmark/internal/sanitize"
	"github.com/air-gapped/embedmark/internal/server"
	"github.com/air-gapped/embedmark/internal/template"
	"github.com/air-gapped/embedmark/internal/transform"
)

// Set by linker via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := app{}.run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries wiring overrides; the zero value is the production setup.
type app struct {
	fetchOpts []fetch.Option
}

func (a app) run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	serve := len(args) > 0 && args[0] == "serve"
	name := "embedmark"
	if serve {
		args = args[1:]
		name = "embedmark serve"
	}

	cfg, err := config.Parse(name, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "embedmark: %v\n", err)
		return 2
	}
	if cfg.Version {
		fmt.Fprintf(stdout, "embedmark %s (%s) built %s\n", version, commit, date)
		return 0
	}

	logger := logging.New(stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	if cfg.TLSSkipVerify {
		logger.Warn("TLS certificate verification disabled for upstream fetches")
	}

	var (
		rec metrics.Recorder = metrics.NoopRecorder{}
		reg *prom.Registry
	)
	if serve {
		reg = metrics.NewRegistry()
		rec = metrics.NewPrometheusRecorder(reg)
	}

	tr, err := a.buildTransform(cfg, rec)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	if serve {
		return a.serve(ctx, cfg, tr, rec, reg, logger)
	}
	return a.renderOnce(ctx, cfg, tr, stdin, stdout, logger)
}

// buildTransform wires the provider registry, the cached fetcher and the
// sanitizer into a Transform.
func (a app) buildTransform(cfg *config.Config, rec metrics.Recorder) (*transform.Transform, error) {
	var regOpts []provider.Option
	if cfg.Discovery {
		regOpts = append(regOpts, provider.WithDiscovery())
	}
	registry := provider.Default(regOpts...)
	if cfg.ProvidersFile != "" {
		rules, err := provider.LoadFile(cfg.ProvidersFile)
		if err != nil {
			return nil, err
		}
		if registry, err = registry.Extend(rules...); err != nil {
			return nil, err
		}
	}

	fetchOpts := append([]fetch.Option{
		fetch.WithTLSSkipVerify(cfg.TLSSkipVerify),
		fetch.WithUserAgent("embedmark/" + version),
	}, a.fetchOpts...)
	client := fetch.NewClient(cfg.FetchTimeout, cfg.MaxBodySize, fetchOpts...)
	cached := fetch.NewCachedClient(client, cache.New(cfg.CacheTTL, cfg.CacheMaxSize),
		fetch.WithStatusHook(func(s cache.Status) { rec.IncCacheLookup(string(s)) }))

	return transform.New(transform.Config{
		Registry:  registry,
		Fetcher:   cached,
		Options:   cfg.Transform,
		Observer:  rec,
		Sanitizer: sanitize.New(),
	})
}

func (a app) renderOnce(ctx context.Context, cfg *config.Config, tr *transform.Transform, stdin io.Reader, stdout io.Writer, logger *slog.Logger) int {
	source, name, err := readInput(cfg, stdin)
	if err != nil {
		logger.Error("read input failed", "error", err)
		return 1
	}

	start := time.Now()
	out, meta, err := render.New(tr).Render(ctx, source)
	fields := logging.RenderFields{
		Source:   name,
		Mode:     "html",
		RenderMs: time.Since(start).Milliseconds(),
		Bytes:    int64(len(out)),
		Err:      err,
	}
	if cfg.Transform.JSX {
		fields.Mode = "jsx"
	}
	if meta != nil {
		fields.Candidates = meta.Embeds.Candidates
		fields.Substituted = meta.Embeds.Substituted
		fields.Unmatched = meta.Embeds.Unmatched
		fields.Malformed = meta.Embeds.Malformed
		fields.Failed = meta.Embeds.Failed
		fields.Placeholders = meta.Embeds.Placeholders
	}
	logging.LogRender(logger, fields)
	if err != nil {
		return 1
	}

	if cfg.Page {
		pages, err := template.NewRenderer("github")
		if err != nil {
			logger.Error("page setup failed", "error", err)
			return 1
		}
		if out, err = pages.RenderPage(template.PageData{Version: version, Source: name, Content: out, Meta: meta}); err != nil {
			logger.Error("render page failed", "error", err)
			return 1
		}
	}

	if _, err := stdout.Write(out); err != nil {
		logger.Error("write output failed", "error", err)
		return 1
	}
	return 0
}

// readInput reads the file named by the first argument, or stdin when there
// is none or it is "-".
func readInput(cfg *config.Config, stdin io.Reader) ([]byte, string, error) {
	r, name := stdin, "stdin"
	if len(cfg.Args) > 1 {
		return nil, "", fmt.Errorf("expected at most one input file, got %d", len(cfg.Args))
	}
	if len(cfg.Args) == 1 && cfg.Args[0] != "-" {
		f, err := os.Open(cfg.Args[0])
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		r, name = f, cfg.Args[0]
	}

	data, err := io.ReadAll(io.LimitReader(r, cfg.MaxInputSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > cfg.MaxInputSize {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", name, cfg.MaxInputSize)
	}
	return data, name, nil
}

func (a app) serve(ctx context.Context, cfg *config.Config, tr *transform.Transform, rec metrics.Recorder, reg *prom.Registry, logger *slog.Logger) int {
	logger.Info("config loaded",
		"listen", cfg.Listen,
		"fetch_timeout", cfg.FetchTimeout.String(),
		"max_body_size", cfg.MaxBodySize,
		"cache_ttl", cfg.CacheTTL.String(),
		"cache_max_size", cfg.CacheMaxSize,
		"concurrency", cfg.Transform.Concurrency,
		"discovery", cfg.Discovery,
		"providers_file", cfg.ProvidersFile,
	)

	pages, err := template.NewRenderer("github")
	if err != nil {
		logger.Error("page setup failed", "error", err)
		return 1
	}

	srv := server.New(cfg, version, tr,
		server.WithLogger(logger),
		server.WithRecorder(rec),
		server.WithMetricsHandler(metrics.HTTPHandler(reg)),
		server.WithPages(pages),
	)
	if err := srv.ListenAndServe(ctx, 30*time.Second); err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}
