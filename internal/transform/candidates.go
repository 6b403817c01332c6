package transform

import (
	"strings"

	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/util"
)

// SourceKind says which syntax produced a candidate.
type SourceKind string

const (
	SourceLink     SourceKind = "link"
	SourceAutoLink SourceKind = "autolink"
	SourceText     SourceKind = "text"
)

// Candidate is a link-bearing node found during the walk.
type Candidate struct {
	Parent gast.Node
	Node   gast.Node
	// Index is the position of Node among Parent's children at walk time.
	Index  int
	URL    string
	Source SourceKind
	// Label is the visible link text, empty for bare URLs.
	Label string

	// For SourceText: the Text siblings holding the URL, and the URL's
	// byte range within their joined values.
	run         []*gast.Text
	start, stop int
}

// Candidates returns the link-bearing nodes of doc in document order. The
// tree is not modified.
func Candidates(doc gast.Node, source []byte) []Candidate {
	var out []Candidate

	_ = gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *gast.Link:
			label := plainText(node, source)
			dest := string(node.Destination)
			if label == dest {
				label = ""
			}
			out = appendCandidate(out, node, dest, SourceLink, label)
			return gast.WalkSkipChildren, nil

		case *gast.AutoLink:
			if node.AutoLinkType == gast.AutoLinkURL {
				out = appendCandidate(out, node, string(node.URL(source)), SourceAutoLink, "")
			}
			return gast.WalkSkipChildren, nil

		case *gast.Image, *gast.CodeSpan, *gast.RawHTML, *gast.HTMLBlock,
			*gast.CodeBlock, *gast.FencedCodeBlock:
			return gast.WalkSkipChildren, nil

		case *Image, *LazyImage, *HTML, *Placeholder, *Loader:
			return gast.WalkSkipChildren, nil

		case *gast.Text:
			if !startsRun(node) {
				return gast.WalkContinue, nil
			}
			if c, ok := textCandidate(node, source); ok {
				out = append(out, c)
			}
		}
		return gast.WalkContinue, nil
	})

	return out
}

func appendCandidate(out []Candidate, n gast.Node, rawURL string, src SourceKind, label string) []Candidate {
	parent := n.Parent()
	if parent == nil {
		return out
	}
	return append(out, Candidate{
		Parent: parent,
		Node:   n,
		Index:  indexOf(parent, n),
		URL:    rawURL,
		Source: src,
		Label:  label,
	})
}

func indexOf(parent, n gast.Node) int {
	i := 0
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		if c == n {
			return i
		}
		i++
	}
	return -1
}

// A text run is a line's worth of consecutive Text siblings. The inline
// parser splits one URL into several of them at '_' and '*'.
func startsRun(n *gast.Text) bool {
	if n.IsRaw() {
		return false
	}
	prev, ok := n.PreviousSibling().(*gast.Text)
	return !ok || prev.IsRaw() || endsLine(prev)
}

func endsLine(n *gast.Text) bool {
	return n.SoftLineBreak() || n.HardLineBreak()
}

func collectRun(first *gast.Text) []*gast.Text {
	run := []*gast.Text{first}
	for cur := first; !endsLine(cur); {
		next, ok := cur.NextSibling().(*gast.Text)
		if !ok || next.IsRaw() {
			break
		}
		run = append(run, next)
		cur = next
	}
	return run
}

func joinRun(run []*gast.Text, source []byte) string {
	var b strings.Builder
	for _, t := range run {
		b.Write(t.Segment.Value(source))
	}
	return b.String()
}

// textCandidate reports the run starting at first as a candidate when its
// trimmed content is a single URL token that is not glued to neighbouring
// inline markup.
func textCandidate(first *gast.Text, source []byte) (Candidate, bool) {
	run := collectRun(first)
	last := run[len(run)-1]
	joined := joinRun(run, source)

	start := len(joined) - len(strings.TrimLeft(joined, " \t"))
	end := len(strings.TrimRight(joined, " \t"))
	if start >= end {
		return Candidate{}, false
	}
	token := joined[start:end]
	if !looksLikeURL(token) || padded(run) {
		return Candidate{}, false
	}

	if start == 0 {
		if _, isText := first.PreviousSibling().(*gast.Text); first.PreviousSibling() != nil && !isText {
			return Candidate{}, false
		}
	}
	if end == len(joined) && !endsLine(last) && last.NextSibling() != nil {
		return Candidate{}, false
	}

	stop := start + len(trimURLTail(token))
	parent := first.Parent()
	if parent == nil {
		return Candidate{}, false
	}
	return Candidate{
		Parent: parent,
		Node:   first,
		Index:  indexOf(parent, first),
		URL:    string(util.UnescapePunctuations([]byte(joined[start:stop]))),
		Source: SourceText,
		run:    run,
		start:  start,
		stop:   stop,
	}, true
}

func padded(run []*gast.Text) bool {
	for _, t := range run {
		if t.Segment.Padding != 0 {
			return true
		}
	}
	return false
}

// looksLikeURL selects bare text worth classifying. Anything with an
// explicit scheme qualifies so that malformed URLs are counted rather than
// silently ignored.
func looksLikeURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	return strings.Contains(s, "://")
}

// trimURLTail drops trailing sentence punctuation and an unbalanced closing
// parenthesis, as GFM autolinking does.
func trimURLTail(s string) string {
	for s != "" {
		switch c := s[len(s)-1]; {
		case strings.IndexByte(".,;:!?*_~'\"", c) >= 0:
			s = s[:len(s)-1]
		case c == ')' && strings.Count(s, ")") > strings.Count(s, "("):
			s = s[:len(s)-1]
		default:
			return s
		}
	}
	return s
}

func plainText(n gast.Node, source []byte) string {
	var b strings.Builder
	_ = gast.Walk(n, func(c gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *gast.String:
			b.Write(t.Value)
		}
		return gast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
