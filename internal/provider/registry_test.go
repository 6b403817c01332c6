package provider

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestDefault_Lookup(t *testing.T) {
	reg := Default()

	tests := []struct {
		url    string
		wantID string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "youtube", true},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "youtube", true},
		{"https://YOUTUBE.com/shorts/abc", "youtube", true},
		{"https://youtu.be/dQw4w9WgXcQ?si=tracking", "youtube-short", true},
		{"https://vimeo.com/76979871", "vimeo", true},
		{"https://twitter.com/jack/status/20", "twitter", true},
		{"https://x.com/jack/status/20", "twitter", true},
		{"https://www.flickr.com/photos/bees/2341623661/", "flickr", true},
		{"https://flic.kr/p/4yVr8K", "flickr-short", true},
		{"https://soundcloud.com/forss/flickermood", "soundcloud", true},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", "spotify", true},
		{"https://de.slideshare.net/haraldf/business-quotes", "slideshare", true},
		{"https://www.reddit.com/r/golang/comments/abc/title/", "reddit", true},

		// path prefix not matched
		{"https://www.youtube.com/about", "", false},
		{"https://www.reddit.com/user/someone", "", false},

		// ordinary links
		{"https://example.com/article", "", false},
		{"https://youtube.com.evil.example/watch?v=x", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			rule, ok := reg.Lookup(mustParse(t, tc.url))
			if ok != tc.wantOK {
				t.Fatalf("Lookup ok = %v, want %v", ok, tc.wantOK)
			}
			if rule.ID != tc.wantID {
				t.Errorf("rule.ID = %q, want %q", rule.ID, tc.wantID)
			}
		})
	}
}

func TestLookup_FirstRuleWins(t *testing.T) {
	reg := MustNew([]Rule{
		{ID: "specific", Hosts: []string{"media.example"}, PathPrefixes: []string{"/photo/"}, Kind: KindPhoto},
		{ID: "broad", Hosts: []string{"media.example"}, Kind: KindRich},
	})

	rule, ok := reg.Lookup(mustParse(t, "https://media.example/photo/1"))
	if !ok || rule.ID != "specific" {
		t.Errorf("got %q, want specific", rule.ID)
	}
	rule, ok = reg.Lookup(mustParse(t, "https://media.example/song/1"))
	if !ok || rule.ID != "broad" {
		t.Errorf("got %q, want broad", rule.ID)
	}
}

func TestLookup_Wildcard(t *testing.T) {
	reg := MustNew([]Rule{
		{ID: "tube", Hosts: []string{"*.tube.example"}, Kind: KindVideo},
	})

	if _, ok := reg.Lookup(mustParse(t, "https://eu.tube.example/v/1")); !ok {
		t.Error("subdomain should match wildcard")
	}
	if _, ok := reg.Lookup(mustParse(t, "https://tube.example/v/1")); ok {
		t.Error("bare domain should not match *.tube.example")
	}
	if _, ok := reg.Lookup(mustParse(t, "https://eviltube.example/v/1")); ok {
		t.Error("suffix without dot boundary should not match")
	}
}

func TestLookup_Discovery(t *testing.T) {
	without := Default()
	if _, ok := without.Lookup(mustParse(t, "https://blog.example/post")); ok {
		t.Error("unknown host matched without discovery")
	}

	with := Default(WithDiscovery())
	rule, ok := with.Lookup(mustParse(t, "https://blog.example/post"))
	if !ok {
		t.Fatal("discovery registry should match unknown hosts")
	}
	if rule.ID != GenericID || rule.Kind != KindLink {
		t.Errorf("rule = %+v, want generic link rule", rule)
	}

	// Known providers still take precedence.
	rule, _ = with.Lookup(mustParse(t, "https://vimeo.com/1"))
	if rule.ID != "vimeo" {
		t.Errorf("rule.ID = %q, want vimeo", rule.ID)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"WWW.YouTube.com", "youtube.com"},
		{"youtube.com:443", "youtube.com"},
		{"m.facebook.com", "facebook.com"},
		{"mobile.twitter.com", "twitter.com"},
		{"example.com.", "example.com"},
		{"www.com", "www.com"},
		{"bücher.example", "xn--bcher-kva.example"},
	}
	for _, tc := range tests {
		if got := NormalizeHost(tc.in); got != tc.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNew_InvalidRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"missing id", Rule{Hosts: []string{"a.example"}, Kind: KindRich}},
		{"no hosts", Rule{ID: "x", Kind: KindRich}},
		{"bad kind", Rule{ID: "x", Hosts: []string{"a.example"}, Kind: "gif"}},
		{"relative path", Rule{ID: "x", Hosts: []string{"a.example"}, PathPrefixes: []string{"v/"}, Kind: KindRich}},
		{"endpoint without placeholder", Rule{ID: "x", Hosts: []string{"a.example"}, Kind: KindRich, Endpoint: "https://a.example/oembed"}},
		{"relative endpoint", Rule{ID: "x", Hosts: []string{"a.example"}, Kind: KindRich, Endpoint: "/oembed?url={url}"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New([]Rule{tc.rule}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtend_PrependsRules(t *testing.T) {
	base := Default()
	ext, err := base.Extend(Rule{ID: "my-tube", Name: "MyTube", Hosts: []string{"youtube.com"}, Kind: KindVideo})
	if err != nil {
		t.Fatal(err)
	}

	rule, _ := ext.Lookup(mustParse(t, "https://youtube.com/watch?v=1"))
	if rule.ID != "my-tube" {
		t.Errorf("rule.ID = %q, want my-tube", rule.ID)
	}

	// base registry is unchanged
	rule, _ = base.Lookup(mustParse(t, "https://youtube.com/watch?v=1"))
	if rule.ID != "youtube" {
		t.Errorf("base rule.ID = %q, want youtube", rule.ID)
	}
	if len(ext.Rules()) != len(base.Rules())+1 {
		t.Errorf("len(ext.Rules()) = %d, want %d", len(ext.Rules()), len(base.Rules())+1)
	}
}

func TestRule_EndpointFor(t *testing.T) {
	r := Rule{Endpoint: "https://vimeo.com/api/oembed.json?url={url}"}
	got := r.EndpointFor("https://vimeo.com/1?a=b")
	want := "https://vimeo.com/api/oembed.json?url=https%3A%2F%2Fvimeo.com%2F1%3Fa%3Db"
	if got != want {
		t.Errorf("EndpointFor = %q, want %q", got, want)
	}
	if (Rule{}).EndpointFor("https://x.example") != "" {
		t.Error("empty template should produce empty endpoint")
	}
}

func TestClassify(t *testing.T) {
	reg := MustNew([]Rule{
		{ID: "video-provider", Hosts: []string{"video-provider.example"}, PathPrefixes: []string{"/watch"}, Kind: KindVideo},
	})

	m, err := reg.Classify("https://video-provider.example/watch?id=42")
	if err != nil {
		t.Fatal(err)
	}
	if m.Rule.ID != "video-provider" {
		t.Errorf("rule = %q", m.Rule.ID)
	}
	if m.URL != "https://video-provider.example/watch?id=42" {
		t.Errorf("URL = %q", m.URL)
	}
}

func TestClassify_Errors(t *testing.T) {
	reg := Default()

	tests := []struct {
		in      string
		wantErr error
	}{
		{"video-provider.example/watch", ErrMalformedURL},
		{"/relative/path", ErrMalformedURL},
		{"mailto:someone@example.com", ErrMalformedURL},
		{"ftp://files.example/x", ErrMalformedURL},
		{"https://", ErrMalformedURL},
		{"not a url at all", ErrMalformedURL},
		{"", ErrMalformedURL},
		{"https://example.com/post", ErrNoProviderMatch},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			_, err := reg.Classify(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestClassify_NormalizesURL(t *testing.T) {
	reg := Default()

	m, err := reg.Classify("  <https://WWW.YouTube.com/watch?v=abc&utm_source=feed&feature=share#t=10>  ")
	if err != nil {
		t.Fatal(err)
	}
	if m.URL != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("URL = %q", m.URL)
	}
	if strings.Contains(m.URL, "utm_") {
		t.Error("tracking parameters were not stripped")
	}
}
