package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind is the embed shape a provider produces.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindRich  Kind = "rich"
	KindVideo Kind = "video"
	KindLink  Kind = "link"
)

// ParseKind converts a string to a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPhoto, KindRich, KindVideo, KindLink:
		return k, true
	}
	return "", false
}

// Rule maps a set of hosts (and optionally path prefixes) to a provider.
type Rule struct {
	ID           string
	Name         string
	Hosts        []string // "example.com" or "*.example.com"
	PathPrefixes []string // empty matches any path
	Kind         Kind

	// Endpoint is the oEmbed endpoint template. "{url}" is replaced with
	// the query-escaped candidate URL. Empty means the endpoint has to be
	// discovered from the page itself.
	Endpoint string
}

// EndpointFor expands the rule's endpoint template for rawURL.
func (r Rule) EndpointFor(rawURL string) string {
	if r.Endpoint == "" {
		return ""
	}
	return strings.ReplaceAll(r.Endpoint, "{url}", url.QueryEscape(rawURL))
}

func (r Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("provider rule: missing id")
	}
	if len(r.Hosts) == 0 {
		return fmt.Errorf("provider rule %q: no hosts", r.ID)
	}
	if _, ok := ParseKind(string(r.Kind)); !ok {
		return fmt.Errorf("provider rule %q: invalid kind %q", r.ID, r.Kind)
	}
	for _, p := range r.PathPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("provider rule %q: path prefix %q must start with /", r.ID, p)
		}
	}
	if r.Endpoint != "" {
		if !strings.Contains(r.Endpoint, "{url}") {
			return fmt.Errorf("provider rule %q: endpoint has no {url} placeholder", r.ID)
		}
		u, err := url.Parse(strings.ReplaceAll(r.Endpoint, "{url}", "x"))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("provider rule %q: endpoint %q is not an absolute http(s) URL", r.ID, r.Endpoint)
		}
	}
	return nil
}

// normalized returns a copy of r with hosts run through NormalizeHost and
// the display name defaulted to the id.
func (r Rule) normalized() Rule {
	out := r
	out.Kind, _ = ParseKind(string(r.Kind))
	if out.Name == "" {
		out.Name = r.ID
	}
	out.Hosts = make([]string, 0, len(r.Hosts))
	for _, h := range r.Hosts {
		if rest, ok := strings.CutPrefix(h, "*."); ok {
			out.Hosts = append(out.Hosts, "*."+NormalizeHost(rest))
			continue
		}
		out.Hosts = append(out.Hosts, NormalizeHost(h))
	}
	out.PathPrefixes = append([]string(nil), r.PathPrefixes...)
	return out
}

func (r Rule) matches(host, path string) bool {
	hostOK := false
	for _, h := range r.Hosts {
		if suffix, ok := strings.CutPrefix(h, "*"); ok {
			// "*.example.com" matches sub.example.com but not example.com
			if strings.HasSuffix(host, suffix) && host != suffix[1:] {
				hostOK = true
				break
			}
			continue
		}
		if host == h {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return false
	}
	if len(r.PathPrefixes) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, p := range r.PathPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
