// Package fetch performs the HTTP side of oEmbed resolution: endpoint
// requests, endpoint discovery from provider pages, and response caching.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/oembed"
	"github.com/air-gapped/embedmark/internal/ssrf"
)

// ErrNoEndpoint is returned when discovery finds no oEmbed link on a page.
var ErrNoEndpoint = errors.New("no oembed endpoint advertised")

// discoveryTypes are the link types providers advertise, JSON only.
var discoveryTypes = []string{"application/json+oembed", "text/json+oembed"}

// Result holds the outcome of an upstream fetch.
type Result struct {
	Body         []byte
	StatusCode   int
	ContentType  string
	ETag         string
	LastModified string
	FetchMs      int64
}

// StatusError reports a response that was neither 200 nor 304.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}

// Client fetches oEmbed payloads and provider pages.
type Client struct {
	httpClient  *http.Client
	maxBodySize int64
	userAgent   string
}

type options struct {
	ssrfProtection bool
	tlsSkipVerify  bool
	userAgent      string
}

// Option configures a Client.
type Option func(*options)

// WithSSRFProtection toggles dial-time blocking of internal addresses. It is
// on by default; tests against httptest servers turn it off.
func WithSSRFProtection(on bool) Option {
	return func(o *options) { o.ssrfProtection = on }
}

// WithTLSSkipVerify disables certificate verification.
func WithTLSSkipVerify(skip bool) Option {
	return func(o *options) { o.tlsSkipVerify = skip }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// NewClient creates a fetch client with the given configuration.
func NewClient(timeout time.Duration, maxBodySize int64, opts ...Option) *Client {
	o := options{ssrfProtection: true, userAgent: "embedmark"}
	for _, opt := range opts {
		opt(&o)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if o.ssrfProtection {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   ssrf.DialControl,
		}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxBodySize: maxBodySize,
		userAgent:   o.userAgent,
	}
}

// FetchOembed implements oembed.Fetcher.
func (c *Client) FetchOembed(ctx context.Context, req oembed.Request) ([]byte, error) {
	endpoint := req.Endpoint
	if req.Discover {
		var err error
		if endpoint, err = c.Discover(ctx, req.URL); err != nil {
			return nil, err
		}
	}

	result, err := c.Fetch(ctx, endpoint, "", "")
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

// Fetch GETs an oEmbed endpoint. If ifNoneMatch or ifModifiedSince are
// set, a conditional GET is performed and a 304 is returned as a Result
// without a body.
func (c *Client) Fetch(ctx context.Context, rawURL, ifNoneMatch, ifModifiedSince string) (*Result, error) {
	return c.get(ctx, rawURL, "application/json", ifNoneMatch, ifModifiedSince)
}

// Discover loads pageURL and returns the oEmbed endpoint it advertises
// with <link rel="alternate" type="application/json+oembed">.
func (c *Client) Discover(ctx context.Context, pageURL string) (string, error) {
	result, err := c.get(ctx, pageURL, "text/html", "", "")
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var href string
	for _, typ := range discoveryTypes {
		if v, ok := doc.Find(`link[type="` + typ + `"]`).First().Attr("href"); ok && v != "" {
			href = v
			break
		}
	}
	if href == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", href, err)
	}
	endpoint := base.ResolveReference(ref)
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported endpoint scheme %q", ErrNoEndpoint, endpoint.Scheme)
	}
	return endpoint.String(), nil
}

func (c *Client) get(ctx context.Context, rawURL, accept, ifNoneMatch, ifModifiedSince string) (*Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	if ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", ifModifiedSince)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream fetch: %w", err)
	}
	defer resp.Body.Close()

	fetchMs := time.Since(start).Milliseconds()
	log.Debug("upstream fetch", "url", rawURL, "status", resp.StatusCode, "upstream_ms", fetchMs)

	if resp.StatusCode == http.StatusNotModified {
		return &Result{
			StatusCode:   http.StatusNotModified,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchMs:      fetchMs,
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > c.maxBodySize {
		return nil, fmt.Errorf("response too large: %d bytes (limit %d)", resp.ContentLength, c.maxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("response too large: exceeds %d bytes limit", c.maxBodySize)
	}

	return &Result{
		Body:         body,
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchMs:      fetchMs,
	}, nil
}
