// Package server exposes markdown rendering with embed resolution over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/air-gapped/embedmark/internal/config"
	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/metrics"
	"github.com/air-gapped/embedmark/internal/render"
	"github.com/air-gapped/embedmark/internal/template"
	"github.com/air-gapped/embedmark/internal/transform"
)

// Server is the embedmark HTTP server.
type Server struct {
	cfg      *config.Config
	version  string
	base     *transform.Transform
	pages    *template.Renderer
	recorder metrics.Recorder
	metrics  http.Handler
	logger   *slog.Logger
	mux      *http.ServeMux

	mu        sync.Mutex
	renderers map[transform.Options]*render.Renderer
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder sets the metrics recorder for render timings.
func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Server) { s.recorder = rec }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPages enables ?page=true responses rendered with pages.
func WithPages(pages *template.Renderer) Option {
	return func(s *Server) { s.pages = pages }
}

// New creates a server rendering with tr. Per-request query parameters
// derive variants of tr's options.
func New(cfg *config.Config, version string, tr *transform.Transform, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		version:   version,
		base:      tr,
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
		mux:       http.NewServeMux(),
		renderers: map[transform.Options]*render.Renderer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.renderers[tr.Options()] = render.New(tr)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /render", s.handleRender)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the server's HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return logging.Middleware(s.logger, s.mux)
}

// ListenAndServe serves on cfg.Listen until ctx is done, then shuts down
// gracefully within grace.
func (s *Server) ListenAndServe(ctx context.Context, grace time.Duration) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "listen", s.cfg.Listen, "version", s.version)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
	w.Write([]byte("OK"))
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	opts, page, err := s.requestOptions(r)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	source, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxInputSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("document too large (limit is %d bytes)", s.cfg.MaxInputSize))
			return
		}
		s.renderError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	renderer, err := s.rendererFor(opts)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	out, meta, err := renderer.Render(r.Context(), source)
	elapsed := time.Since(start)
	s.recorder.ObserveRenderDuration(elapsed)

	fields := logging.RenderFields{
		Source:   "request",
		Mode:     modeOf(opts, page),
		RenderMs: elapsed.Milliseconds(),
		Bytes:    int64(len(out)),
		Err:      err,
	}
	if meta != nil {
		fields.Candidates = meta.Embeds.Candidates
		fields.Substituted = meta.Embeds.Substituted
		fields.Unmatched = meta.Embeds.Unmatched
		fields.Malformed = meta.Embeds.Malformed
		fields.Failed = meta.Embeds.Failed
		fields.Placeholders = meta.Embeds.Placeholders
	}
	logging.LogRender(logging.FromContext(r.Context()), fields)

	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nobody reads the response.
			return
		}
		s.renderError(w, http.StatusBadGateway, "embed resolution unavailable")
		return
	}

	if page {
		out, err = s.pages.RenderPage(template.PageData{
			Version: s.version,
			Source:  r.URL.Query().Get("name"),
			Content: out,
			Meta:    meta,
		})
		if err != nil {
			s.logger.Error("render page failed", "error", err)
			s.renderError(w, http.StatusInternalServerError, "failed to render page")
			return
		}
	}

	s.setResponseHeaders(w, meta, elapsed)
	if opts.JSX {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// requestOptions applies the syncWidget, asyncImg, jsx and page query
// parameters over the server defaults.
func (s *Server) requestOptions(r *http.Request) (transform.Options, bool, error) {
	opts := s.base.Options()
	q := r.URL.Query()

	overrides := []struct {
		name string
		dst  *bool
	}{
		{"syncWidget", &opts.SyncWidget},
		{"asyncImg", &opts.AsyncImg},
		{"jsx", &opts.JSX},
	}
	for _, o := range overrides {
		if !q.Has(o.name) {
			continue
		}
		v, err := strconv.ParseBool(q.Get(o.name))
		if err != nil {
			return opts, false, fmt.Errorf("invalid %s value %q", o.name, q.Get(o.name))
		}
		*o.dst = v
	}

	page := false
	if q.Has("page") {
		v, err := strconv.ParseBool(q.Get("page"))
		if err != nil {
			return opts, false, fmt.Errorf("invalid page value %q", q.Get("page"))
		}
		page = v
	}
	if page && s.pages == nil {
		return opts, false, errors.New("page rendering is not enabled")
	}
	if page && opts.JSX {
		return opts, false, errors.New("page and jsx cannot be combined")
	}
	return opts, page, nil
}

// rendererFor returns a renderer for opts, building it on first use. At most
// eight variants exist since only the three shape flags vary.
func (s *Server) rendererFor(opts transform.Options) (*render.Renderer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.renderers[opts]; ok {
		return r, nil
	}
	tr, err := s.base.WithOptions(opts)
	if err != nil {
		return nil, err
	}
	r := render.New(tr)
	s.renderers[opts] = r
	return r, nil
}

func (s *Server) renderError(w http.ResponseWriter, statusCode int, message string) {
	s.setSecurityHeaders(w)
	w.Header().Set("X-Embedmark-Version", s.version)
	http.Error(w, message, statusCode)
}

func (s *Server) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

func (s *Server) setResponseHeaders(w http.ResponseWriter, meta *render.Meta, elapsed time.Duration) {
	s.setSecurityHeaders(w)
	w.Header().Set("X-Embedmark-Version", s.version)
	w.Header().Set("X-Embedmark-Render-Ms", strconv.FormatInt(elapsed.Milliseconds(), 10))
	if meta == nil {
		return
	}
	w.Header().Set("X-Embedmark-Candidates", strconv.Itoa(meta.Embeds.Candidates))
	w.Header().Set("X-Embedmark-Substituted", strconv.Itoa(meta.Embeds.Substituted))
	w.Header().Set("X-Embedmark-Failed", strconv.Itoa(meta.Embeds.Failed))
}

func modeOf(opts transform.Options, page bool) string {
	switch {
	case opts.JSX:
		return "jsx"
	case page:
		return "page"
	}
	return "html"
}
