// Package oembed turns a classified provider URL into a normalized embed
// descriptor. The network round trip is delegated to an injected Fetcher.
package oembed

import (
	"context"
	"errors"
	"fmt"

	"github.com/air-gapped/embedmark/internal/provider"
)

var (
	// ErrResolutionFailed marks a candidate whose descriptor could not be
	// produced. Callers leave such candidates untouched.
	ErrResolutionFailed = errors.New("oembed resolution failed")

	// ErrUnrecoverable is returned (wrapped) by a Fetcher when the
	// resolution mechanism itself is broken and the whole transform
	// should abort.
	ErrUnrecoverable = errors.New("oembed fetcher unrecoverable")
)

// Request describes one oEmbed lookup.
type Request struct {
	Rule     provider.Rule
	URL      string // normalized candidate URL
	Endpoint string // expanded endpoint; empty when Discover is set

	// Discover asks the fetcher to locate the endpoint from the page's
	// <link type="application/json+oembed"> tag.
	Discover bool
}

// Fetcher performs the oEmbed request and returns the raw JSON payload.
type Fetcher interface {
	FetchOembed(ctx context.Context, req Request) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) ([]byte, error)

// FetchOembed calls f.
func (f FetcherFunc) FetchOembed(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// ResolutionError reports a failed resolution. It matches
// ErrResolutionFailed with errors.Is.
type ResolutionError struct {
	URL      string
	Provider string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s (%s): %v", e.URL, e.Provider, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrResolutionFailed.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolutionFailed }

// Resolver builds requests for matched URLs and normalizes the responses.
type Resolver struct {
	fetcher Fetcher
}

// NewResolver returns a Resolver backed by f.
func NewResolver(f Fetcher) *Resolver {
	return &Resolver{fetcher: f}
}

// RequestFor builds the request for m according to its rule's convention.
func RequestFor(m provider.Match) Request {
	req := Request{Rule: m.Rule, URL: m.URL}
	if m.Rule.Endpoint == "" {
		req.Discover = true
		return req
	}
	req.Endpoint = m.Rule.EndpointFor(m.URL)
	return req
}

// Resolve fetches and normalizes the descriptor for m. Errors are either a
// *ResolutionError or wrap ErrUnrecoverable.
func (r *Resolver) Resolve(ctx context.Context, m provider.Match) (Descriptor, error) {
	req := RequestFor(m)

	body, err := r.fetcher.FetchOembed(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnrecoverable) {
			return Descriptor{}, fmt.Errorf("resolve %s: %w", m.URL, err)
		}
		return Descriptor{}, &ResolutionError{URL: m.URL, Provider: m.Rule.ID, Err: err}
	}

	d, err := decode(body, m.Rule, m.URL)
	if err != nil {
		return Descriptor{}, &ResolutionError{URL: m.URL, Provider: m.Rule.ID, Err: err}
	}
	if d.ProviderName == "" {
		d.ProviderName = hostOf(m.URL)
	}
	return d, nil
}

func hostOf(rawURL string) string {
	u, err := provider.ParseCandidate(rawURL)
	if err != nil {
		return ""
	}
	return provider.NormalizeHost(u.Host)
}
