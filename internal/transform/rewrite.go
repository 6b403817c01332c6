package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"

	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/oembed"
	"github.com/air-gapped/embedmark/internal/provider"
)

// Report summarizes one Rewrite.
type Report struct {
	Candidates     int
	Substituted    int
	Unmatched      int
	Malformed      int
	Failed         int
	Placeholders   int
	LoaderAppended bool
}

// job is one matched candidate and its result slot.
type job struct {
	cand  Candidate
	match provider.Match
	desc  oembed.Descriptor
	err   error
}

// Rewrite replaces every resolvable candidate in doc with its embed node.
// Candidates that are unmatched, malformed or fail to resolve are left
// as they were. An error is returned only when the fetcher reports an
// unrecoverable failure or ctx ends; the tree is then left unmodified.
func (t *Transform) Rewrite(ctx context.Context, doc gast.Node, source []byte) (Report, error) {
	log := t.logger
	if log == nil {
		log = logging.FromContext(ctx)
	}

	cands := Candidates(doc, source)
	rep := Report{Candidates: len(cands)}

	jobs := make([]job, 0, len(cands))
	for _, c := range cands {
		m, err := t.registry.Classify(c.URL)
		switch {
		case errors.Is(err, provider.ErrMalformedURL):
			rep.Malformed++
			t.observer.ObserveCandidate(OutcomeMalformed, "")
			continue
		case err != nil:
			rep.Unmatched++
			t.observer.ObserveCandidate(OutcomeUnmatched, "")
			continue
		}
		jobs = append(jobs, job{cand: c, match: m})
	}

	if err := t.resolveAll(ctx, jobs); err != nil {
		log.Error("embed rewrite aborted", "error", err)
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		log.Error("embed rewrite aborted", "error", err)
		return rep, fmt.Errorf("rewrite: %w", err)
	}

	var providers []string
	seen := make(map[string]bool)
	for i := range jobs {
		j := &jobs[i]
		id := j.match.Rule.ID
		if j.err != nil {
			rep.Failed++
			t.observer.ObserveCandidate(OutcomeFailed, id)
			log.Debug("embed resolution failed", "url", j.match.URL, "provider", id, "error", j.err)
			continue
		}

		node, placeholder := t.replacement(j)
		if j.cand.Source == SourceText {
			spliceText(j.cand, node)
		} else {
			j.cand.Parent.ReplaceChild(j.cand.Parent, j.cand.Node, node)
		}
		rep.Substituted++
		t.observer.ObserveCandidate(OutcomeSubstituted, id)

		if placeholder {
			rep.Placeholders++
			if !seen[j.desc.ProviderName] {
				seen[j.desc.ProviderName] = true
				providers = append(providers, j.desc.ProviderName)
			}
		}
	}

	if rep.Placeholders > 0 {
		root := rootOf(doc)
		if !hasLoader(root) {
			root.AppendChild(root, NewLoader(providers))
			rep.LoaderAppended = true
		}
	}

	log.Debug("embed rewrite complete",
		"candidates", rep.Candidates,
		"substituted", rep.Substituted,
		"failed", rep.Failed,
		"placeholders", rep.Placeholders,
	)
	return rep, nil
}

// resolveAll fills every job's result slot. Only unrecoverable errors are
// returned; they cancel the remaining resolutions.
func (t *Transform) resolveAll(ctx context.Context, jobs []job) error {
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Concurrency)

	for i := range jobs {
		j := &jobs[i]
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, t.opts.Timeout)
			defer cancel()

			start := time.Now()
			d, err := t.resolver.Resolve(rctx, j.match)
			t.observer.ObserveResolution(j.match.Rule.ID, time.Since(start), err)

			if errors.Is(err, oembed.ErrUnrecoverable) {
				return err
			}
			j.desc, j.err = d, err
			return nil
		})
	}
	return g.Wait()
}

// replacement builds the node for a resolved job and reports whether it is
// a placeholder.
func (t *Transform) replacement(j *job) (gast.Node, bool) {
	d := j.desc

	kind := d.Kind
	if kind == provider.KindLink {
		if d.HasImage() && !d.HasHTML() {
			kind = provider.KindPhoto
		} else {
			kind = provider.KindRich
		}
	}

	if kind == provider.KindPhoto {
		img := NewImage(d.ImageURL, altText(j.cand, d), d.Width, d.Height)
		if t.opts.AsyncImg {
			return NewLazyImage(d.ProviderName, img), false
		}
		return img, false
	}

	markup := d.HTML
	if t.opts.Sanitize {
		markup = t.sanitizer.Sanitize(markup)
	}
	if t.opts.SyncWidget {
		return NewHTML(markup, d.ProviderName, j.match.Rule.ID), false
	}
	return &Placeholder{
		Provider:   d.ProviderName,
		ProviderID: j.match.Rule.ID,
		LoaderRef:  LoaderRef,
		URL:        j.match.URL,
		Title:      altText(j.cand, d),
		Thumbnail:  d.ThumbnailURL,
		HTML:       markup,
	}, true
}

// spliceText swaps a bare URL for node. Text around the URL in its run is
// kept, and the run's line break moves to the last node after the URL.
func spliceText(c Candidate, node gast.Node) {
	parent, run := c.Parent, c.run
	last := run[len(run)-1]

	lead := sliceRun(run, 0, c.start)
	trail := sliceRun(run, c.stop, -1)
	if endsLine(last) {
		if len(trail) == 0 {
			trail = append(trail, gast.NewTextSegment(text.NewSegment(last.Segment.Stop, last.Segment.Stop)))
		}
		t := trail[len(trail)-1]
		t.SetSoftLineBreak(last.SoftLineBreak())
		t.SetHardLineBreak(last.HardLineBreak())
	}

	anchor := run[0]
	for _, n := range lead {
		parent.InsertBefore(parent, anchor, n)
	}
	parent.InsertBefore(parent, anchor, node)
	for _, n := range trail {
		parent.InsertBefore(parent, anchor, n)
	}
	for _, n := range run {
		parent.RemoveChild(parent, n)
	}
}

// sliceRun returns Text nodes covering bytes [from, to) of the run's joined
// value; to < 0 means the end of the run.
func sliceRun(run []*gast.Text, from, to int) []*gast.Text {
	var out []*gast.Text
	off := 0
	for _, t := range run {
		seg := t.Segment
		n := seg.Stop - seg.Start
		lo, hi := max(from, off), off+n
		if to >= 0 {
			hi = min(hi, to)
		}
		if lo < hi {
			out = append(out, gast.NewTextSegment(text.NewSegment(seg.Start+lo-off, seg.Start+hi-off)))
		}
		off += n
	}
	return out
}

func altText(c Candidate, d oembed.Descriptor) string {
	switch {
	case c.Label != "":
		return c.Label
	case d.Title != "":
		return d.Title
	}
	return d.URL
}

func rootOf(n gast.Node) gast.Node {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n
}

func hasLoader(root gast.Node) bool {
	for c := root.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == KindLoader {
			return true
		}
	}
	return false
}
