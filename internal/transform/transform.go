// Package transform replaces links to known media providers in a goldmark
// document with embed nodes, and renders those nodes as HTML or JSX.
//
// A Transform is safe for concurrent use; all per-document state lives in
// the call to Rewrite.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gast "github.com/yuin/goldmark/ast"

	"github.com/air-gapped/embedmark/internal/oembed"
	"github.com/air-gapped/embedmark/internal/provider"
)

// Outcome classifies what happened to one candidate.
type Outcome string

const (
	OutcomeSubstituted Outcome = "substituted"
	OutcomeUnmatched   Outcome = "unmatched"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeFailed      Outcome = "failed"
)

// Observer receives per-candidate events. Implementations must be safe for
// concurrent use: ObserveResolution is called from resolver goroutines.
type Observer interface {
	ObserveCandidate(outcome Outcome, providerID string)
	ObserveResolution(providerID string, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveCandidate(Outcome, string)               {}
func (noopObserver) ObserveResolution(string, time.Duration, error) {}

// Sanitizer cleans provider markup before it is inserted.
type Sanitizer interface {
	Sanitize(html string) string
}

// Config assembles a Transform. Only Fetcher is required.
type Config struct {
	// Registry defaults to provider.Default().
	Registry *provider.Registry
	Fetcher  oembed.Fetcher
	Options  Options
	// Logger defaults to the logger carried by the Rewrite context.
	Logger *slog.Logger
	// Observer defaults to a no-op.
	Observer Observer
	// Sanitizer is required when Options.Sanitize is set.
	Sanitizer Sanitizer
}

// Transform rewrites documents according to its Config.
type Transform struct {
	registry  *provider.Registry
	resolver  *oembed.Resolver
	opts      Options
	logger    *slog.Logger
	observer  Observer
	sanitizer Sanitizer
}

// New validates cfg and builds a Transform.
func New(cfg Config) (*Transform, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidConfiguration)
	}
	if err := cfg.Options.validate(); err != nil {
		return nil, err
	}
	if cfg.Options.Sanitize && cfg.Sanitizer == nil {
		return nil, fmt.Errorf("%w: sanitize requested without a sanitizer", ErrInvalidConfiguration)
	}

	t := &Transform{
		registry:  cfg.Registry,
		resolver:  oembed.NewResolver(cfg.Fetcher),
		opts:      cfg.Options.withDefaults(),
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		sanitizer: cfg.Sanitizer,
	}
	if t.registry == nil {
		t.registry = provider.Default()
	}
	if t.observer == nil {
		t.observer = noopObserver{}
	}
	return t, nil
}

// Options returns the effective options, defaults applied.
func (t *Transform) Options() Options { return t.opts }

// Func is the tree-in, tree-out shape of a Transform. The document is
// mutated in place.
type Func func(ctx context.Context, doc gast.Node, source []byte) error

// Func returns t as a Func.
func (t *Transform) Func() Func {
	return func(ctx context.Context, doc gast.Node, source []byte) error {
		_, err := t.Rewrite(ctx, doc, source)
		return err
	}
}

// WithOptions returns a copy of t that rewrites with opts. The registry,
// fetcher and hooks are shared.
func (t *Transform) WithOptions(opts Options) (*Transform, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Sanitize && t.sanitizer == nil {
		return nil, fmt.Errorf("%w: sanitize requested without a sanitizer", ErrInvalidConfiguration)
	}
	out := *t
	out.opts = opts.withDefaults()
	return &out, nil
}
