package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/air-gapped/embedmark/internal/config"
	"github.com/air-gapped/embedmark/internal/metrics"
	"github.com/air-gapped/embedmark/internal/oembed"
	"github.com/air-gapped/embedmark/internal/provider"
	"github.com/air-gapped/embedmark/internal/template"
	"github.com/air-gapped/embedmark/internal/transform"
)

const clipJSON = `{"type":"video","provider_name":"Clips","title":"A clip","html":"<iframe src=\"https://clips.example/embed/7\"></iframe>"}`

var clipsRegistry = provider.MustNew([]provider.Rule{{
	ID:       "clips",
	Name:     "Clips",
	Hosts:    []string{"clips.example"},
	Kind:     provider.KindVideo,
	Endpoint: "https://clips.example/oembed?url={url}",
}})

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) FetchOembed(ctx context.Context, req oembed.Request) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(clipJSON), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Listen:       "127.0.0.1:0",
		FetchTimeout: 10 * time.Second,
		MaxBodySize:  1024 * 1024,
		MaxInputSize: 1024,
		CacheTTL:     time.Minute,
		CacheMaxSize: 1024 * 1024,
		Transform:    transform.DefaultOptions(),
	}
}

func newTestServer(t *testing.T, f oembed.Fetcher, opts ...Option) *httptest.Server {
	t.Helper()
	tr, err := transform.New(transform.Config{Registry: clipsRegistry, Fetcher: f})
	if err != nil {
		t.Fatal(err)
	}
	pages, err := template.NewRenderer("github")
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithPages(pages), WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))}, opts...)
	srv := httptest.NewServer(New(testConfig(), "v0.1.0-test", tr, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, query, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/render"+query, "text/markdown", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("body = %q, want OK", string(body))
	}
}

func TestRender_Default(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	resp, body := post(t, srv, "", "# Notes\n\n[clip](https://clips.example/v/1)\n")

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, `class="oembed-placeholder"`) {
		t.Errorf("expected placeholder:\n%s", body)
	}
	headers := map[string]string{
		"X-Embedmark-Version":     "v0.1.0-test",
		"X-Embedmark-Candidates":  "1",
		"X-Embedmark-Substituted": "1",
		"X-Embedmark-Failed":      "0",
		"X-Content-Type-Options":  "nosniff",
	}
	for k, want := range headers {
		if got := resp.Header.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestRender_QueryOverrides(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	src := "[clip](https://clips.example/v/1)\n"

	tests := []struct {
		name    string
		query   string
		want    string
		wantCT  string
		notWant string
	}{
		{"sync widget", "?syncWidget=true", `<iframe src="https://clips.example/embed/7"></iframe>`, "text/html; charset=utf-8", "oembed-placeholder"},
		{"jsx", "?jsx=1", `className="oembed-placeholder"`, "text/plain; charset=utf-8", `class="oembed-placeholder"`},
		{"page", "?page=true&name=notes.md", "<!DOCTYPE html>", "text/html; charset=utf-8", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := post(t, srv, tc.query, src)
			if resp.StatusCode != 200 {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}
			if !strings.Contains(body, tc.want) {
				t.Errorf("body missing %q:\n%s", tc.want, body)
			}
			if tc.notWant != "" && strings.Contains(body, tc.notWant) {
				t.Errorf("body contains %q", tc.notWant)
			}
			if ct := resp.Header.Get("Content-Type"); ct != tc.wantCT {
				t.Errorf("Content-Type = %q, want %q", ct, tc.wantCT)
			}
		})
	}
}

func TestRender_BadQuery(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	for _, q := range []string{"?syncWidget=maybe", "?page=yes", "?page=true&jsx=true"} {
		t.Run(q, func(t *testing.T) {
			resp, _ := post(t, srv, q, "hello\n")
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRender_TooLarge(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	resp, _ := post(t, srv, "", strings.Repeat("x", 2048))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestRender_FailedResolutionStillRenders(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{err: errors.New("upstream 500")})
	resp, body := post(t, srv, "", "[clip](https://clips.example/v/1)\n")

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `<a href="https://clips.example/v/1">clip</a>`) {
		t.Errorf("link not preserved:\n%s", body)
	}
	if resp.Header.Get("X-Embedmark-Failed") != "1" {
		t.Errorf("X-Embedmark-Failed = %q", resp.Header.Get("X-Embedmark-Failed"))
	}
}

func TestRender_UnrecoverableIsBadGateway(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{err: fmt.Errorf("store offline: %w", oembed.ErrUnrecoverable)})
	resp, body := post(t, srv, "", "[clip](https://clips.example/v/1)\n")

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if strings.Contains(body, "store offline") {
		t.Error("internal error detail leaked to client")
	}
}

func TestRender_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	resp, err := http.Get(srv.URL + "/render")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRenderersAreReused(t *testing.T) {
	tr, err := transform.New(transform.Config{Registry: clipsRegistry, Fetcher: &countingFetcher{}})
	if err != nil {
		t.Fatal(err)
	}
	s := New(testConfig(), "test", tr)

	opts := tr.Options()
	opts.JSX = true
	a, err := s.rendererFor(opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.rendererFor(opts)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("renderer rebuilt for identical options")
	}
	if len(s.renderers) != 2 {
		t.Errorf("renderers = %d, want 2", len(s.renderers))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	srv := newTestServer(t, &countingFetcher{}, WithRecorder(rec), WithMetricsHandler(metrics.HTTPHandler(reg)))

	post(t, srv, "", "hello\n")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "embedmark_render_duration_seconds_count 1") {
		t.Errorf("metrics missing render histogram:\n%s", body)
	}
}

func TestMetricsEndpoint_DisabledByDefault(t *testing.T) {
	srv := newTestServer(t, &countingFetcher{})
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// syncBuffer is written by the server goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogging(t *testing.T) {
	var buf syncBuffer
	srv := newTestServer(t, &countingFetcher{}, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	post(t, srv, "?syncWidget=true", "[clip](https://clips.example/v/1)\n")

	logs := buf.String()
	for _, want := range []string{`"msg":"render"`, `"mode":"html"`, `"substituted":1`, `"msg":"request"`, `"path":"/render"`} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s:\n%s", want, logs)
		}
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	tr, err := transform.New(transform.Config{Registry: clipsRegistry, Fetcher: &countingFetcher{}})
	if err != nil {
		t.Fatal(err)
	}
	s := New(testConfig(), "test", tr, WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, 5*time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
