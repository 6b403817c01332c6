// Package provider holds the ordered table of oEmbed providers and the
// classifier that maps candidate URLs onto it.
package provider

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// GenericID is the id of the fallback rule used when discovery is enabled.
const GenericID = "generic"

// Registry is an ordered, immutable list of provider rules. The first
// matching rule wins. A Registry is safe for concurrent use.
type Registry struct {
	rules     []Rule
	discovery bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithDiscovery makes unmatched http(s) URLs resolve to the generic
// discovery rule instead of no match.
func WithDiscovery() Option {
	return func(r *Registry) { r.discovery = true }
}

// New builds a registry from rules in precedence order.
func New(rules []Rule, opts ...Option) (*Registry, error) {
	r := &Registry{rules: make([]Rule, 0, len(rules))}
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			return nil, err
		}
		r.rules = append(r.rules, rule.normalized())
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MustNew is like New but panics on an invalid rule.
func MustNew(rules []Rule, opts ...Option) *Registry {
	r, err := New(rules, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns a registry of the built-in providers.
func Default(opts ...Option) *Registry {
	return MustNew(builtin, opts...)
}

// Extend returns a new registry with extra rules placed ahead of r's rules.
// r is not modified.
func (r *Registry) Extend(extra ...Rule) (*Registry, error) {
	out := &Registry{discovery: r.discovery}
	for _, rule := range extra {
		if err := rule.validate(); err != nil {
			return nil, err
		}
		out.rules = append(out.rules, rule.normalized())
	}
	out.rules = append(out.rules, r.rules...)
	return out, nil
}

// Rules returns a copy of the rules in precedence order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Discovery reports whether the generic discovery fallback is enabled.
func (r *Registry) Discovery() bool {
	return r.discovery
}

// Lookup returns the first rule matching u.
func (r *Registry) Lookup(u *url.URL) (Rule, bool) {
	if u == nil || u.Host == "" {
		return Rule{}, false
	}
	host := NormalizeHost(u.Host)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, rule := range r.rules {
		if rule.matches(host, path) {
			return rule, true
		}
	}
	if r.discovery {
		return genericRule, true
	}
	return Rule{}, false
}

var hostPrefixes = []string{"www.", "m.", "mobile."}

// NormalizeHost lowercases host, strips the port, converts IDNs to ASCII and
// removes a leading www., m. or mobile. label.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if hp, _, err := net.SplitHostPort(h); err == nil {
		h = hp
	}
	h = strings.TrimSuffix(h, ".")
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		h = ascii
	}
	for _, p := range hostPrefixes {
		if rest, ok := strings.CutPrefix(h, p); ok && strings.Contains(rest, ".") {
			return rest
		}
	}
	return h
}

var genericRule = Rule{
	ID:    GenericID,
	Name:  "",
	Hosts: []string{"*"},
	Kind:  KindLink,
}

var builtin = []Rule{
	{
		ID:           "youtube",
		Name:         "YouTube",
		Hosts:        []string{"youtube.com", "music.youtube.com", "youtube-nocookie.com"},
		PathPrefixes: []string{"/watch", "/shorts/", "/embed/", "/live/", "/playlist"},
		Kind:         KindVideo,
		Endpoint:     "https://www.youtube.com/oembed?format=json&url={url}",
	},
	{
		ID:       "youtube-short",
		Name:     "YouTube",
		Hosts:    []string{"youtu.be"},
		Kind:     KindVideo,
		Endpoint: "https://www.youtube.com/oembed?format=json&url={url}",
	},
	{
		ID:       "vimeo",
		Name:     "Vimeo",
		Hosts:    []string{"vimeo.com", "player.vimeo.com"},
		Kind:     KindVideo,
		Endpoint: "https://vimeo.com/api/oembed.json?url={url}",
	},
	{
		ID:           "dailymotion",
		Name:         "Dailymotion",
		Hosts:        []string{"dailymotion.com"},
		PathPrefixes: []string{"/video/"},
		Kind:         KindVideo,
		Endpoint:     "https://www.dailymotion.com/services/oembed?format=json&url={url}",
	},
	{
		ID:       "dailymotion-short",
		Name:     "Dailymotion",
		Hosts:    []string{"dai.ly"},
		Kind:     KindVideo,
		Endpoint: "https://www.dailymotion.com/services/oembed?format=json&url={url}",
	},
	{
		ID:           "tiktok",
		Name:         "TikTok",
		Hosts:        []string{"tiktok.com"},
		PathPrefixes: []string{"/@"},
		Kind:         KindVideo,
		Endpoint:     "https://www.tiktok.com/oembed?url={url}",
	},
	{
		ID:       "twitter",
		Name:     "Twitter",
		Hosts:    []string{"twitter.com", "x.com"},
		Kind:     KindRich,
		Endpoint: "https://publish.twitter.com/oembed?dnt=true&url={url}",
	},
	{
		ID:           "flickr",
		Name:         "Flickr",
		Hosts:        []string{"flickr.com"},
		PathPrefixes: []string{"/photos/"},
		Kind:         KindPhoto,
		Endpoint:     "https://www.flickr.com/services/oembed/?format=json&url={url}",
	},
	{
		ID:       "flickr-short",
		Name:     "Flickr",
		Hosts:    []string{"flic.kr"},
		Kind:     KindPhoto,
		Endpoint: "https://www.flickr.com/services/oembed/?format=json&url={url}",
	},
	{
		ID:       "giphy",
		Name:     "GIPHY",
		Hosts:    []string{"giphy.com", "gph.is"},
		Kind:     KindPhoto,
		Endpoint: "https://giphy.com/services/oembed?url={url}",
	},
	{
		ID:       "imgur",
		Name:     "Imgur",
		Hosts:    []string{"imgur.com"},
		Kind:     KindRich,
		Endpoint: "https://api.imgur.com/oembed.json?url={url}",
	},
	{
		ID:       "soundcloud",
		Name:     "SoundCloud",
		Hosts:    []string{"soundcloud.com", "on.soundcloud.com"},
		Kind:     KindRich,
		Endpoint: "https://soundcloud.com/oembed?format=json&url={url}",
	},
	{
		ID:       "spotify",
		Name:     "Spotify",
		Hosts:    []string{"open.spotify.com", "spotify.link"},
		Kind:     KindRich,
		Endpoint: "https://open.spotify.com/oembed?url={url}",
	},
	{
		ID:       "mixcloud",
		Name:     "Mixcloud",
		Hosts:    []string{"mixcloud.com"},
		Kind:     KindRich,
		Endpoint: "https://app.mixcloud.com/oembed/?format=json&url={url}",
	},
	{
		ID:       "codepen",
		Name:     "CodePen",
		Hosts:    []string{"codepen.io"},
		Kind:     KindRich,
		Endpoint: "https://codepen.io/api/oembed?format=json&url={url}",
	},
	{
		ID:       "slideshare",
		Name:     "SlideShare",
		Hosts:    []string{"slideshare.net", "*.slideshare.net"},
		Kind:     KindRich,
		Endpoint: "https://www.slideshare.net/api/oembed/2?format=json&url={url}",
	},
	{
		ID:       "speakerdeck",
		Name:     "Speaker Deck",
		Hosts:    []string{"speakerdeck.com"},
		Kind:     KindRich,
		Endpoint: "https://speakerdeck.com/oembed.json?url={url}",
	},
	{
		ID:           "reddit",
		Name:         "Reddit",
		Hosts:        []string{"reddit.com", "old.reddit.com"},
		PathPrefixes: []string{"/r/"},
		Kind:         KindRich,
		Endpoint:     "https://www.reddit.com/oembed?url={url}",
	},
	{
		ID:           "kickstarter",
		Name:         "Kickstarter",
		Hosts:        []string{"kickstarter.com"},
		PathPrefixes: []string{"/projects/"},
		Kind:         KindVideo,
		Endpoint:     "https://www.kickstarter.com/services/oembed?url={url}",
	},
}
