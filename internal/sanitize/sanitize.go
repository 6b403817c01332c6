// Package sanitize cleans provider embed markup before it is inserted
// into a document.
package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	httpsURL  = regexp.MustCompile(`^https://`)
	dimension = regexp.MustCompile(`^[0-9]+(px|%)?$`)
	// iframe permission policy tokens seen in provider embeds.
	allowPolicy = regexp.MustCompile(`^[a-z-]+( [^;]*)?(; ?[a-z-]+( [^;]*)?)*;?$`)
)

// EmbedPolicy returns a policy for provider markup: user-generated content
// plus https iframes, media elements and data-* attributes. Scripts and
// event handlers never survive.
func EmbedPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()

	p.AllowElements("iframe", "figure", "figcaption", "video", "audio", "source", "section")
	p.AllowAttrs("src").Matching(httpsURL).OnElements("iframe", "video", "audio", "source")
	p.AllowAttrs("width", "height").Matching(dimension).OnElements("iframe", "video", "img")
	p.AllowAttrs("frameborder", "scrolling", "title", "loading", "referrerpolicy").OnElements("iframe")
	p.AllowAttrs("allow").Matching(allowPolicy).OnElements("iframe")
	p.AllowAttrs("allowfullscreen").OnElements("iframe")
	p.AllowAttrs("controls", "poster", "preload", "muted", "loop", "playsinline").OnElements("video", "audio")
	p.AllowAttrs("type").OnElements("source")
	p.AllowAttrs("cite").OnElements("blockquote")
	p.AllowAttrs("class").Globally()
	p.AllowDataAttributes()

	return p
}

// Sanitizer applies EmbedPolicy.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns a Sanitizer using EmbedPolicy.
func New() *Sanitizer {
	return &Sanitizer{policy: EmbedPolicy()}
}

// Sanitize returns html with everything outside the policy removed.
func (s *Sanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}
