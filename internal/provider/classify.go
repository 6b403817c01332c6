package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedURL means the candidate is not an absolute http(s) URL.
	ErrMalformedURL = errors.New("malformed url")
	// ErrNoProviderMatch means the URL is valid but no rule matches it.
	ErrNoProviderMatch = errors.New("no provider match")
)

// Match is a classified candidate URL.
type Match struct {
	Rule Rule
	URL  string // normalized
}

// Classify validates text as an absolute URL and looks it up in the
// registry. It returns ErrMalformedURL or ErrNoProviderMatch (wrapped) when
// the text should be left alone.
func (r *Registry) Classify(text string) (Match, error) {
	u, err := ParseCandidate(text)
	if err != nil {
		return Match{}, err
	}
	rule, ok := r.Lookup(u)
	if !ok {
		return Match{}, fmt.Errorf("%w: %s", ErrNoProviderMatch, u.Host)
	}
	return Match{Rule: rule, URL: normalizeURL(u)}, nil
}

// ParseCandidate parses text as an absolute http or https URL. Surrounding
// whitespace and a single pair of angle brackets are ignored.
func ParseCandidate(text string) (*url.URL, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		s = s[1 : len(s)-1]
	}
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, text)
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedURL, u.Scheme)
	}
	if u.Host == "" || u.Opaque != "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrMalformedURL, s)
	}
	u.Scheme = scheme
	return u, nil
}

// trackingParams are query keys dropped from normalized URLs.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"si":      true,
	"ref_src": true,
}

func normalizeURL(u *url.URL) string {
	out := *u
	out.Host = strings.ToLower(u.Host)
	out.Fragment = ""
	out.RawFragment = ""
	out.User = nil

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for key, vals := range q {
			lk := strings.ToLower(key)
			switch {
			case strings.HasPrefix(lk, "utm_"), trackingParams[lk]:
				q.Del(key)
				changed = true
			case lk == "feature" && len(vals) == 1 && vals[0] == "share":
				q.Del(key)
				changed = true
			}
		}
		// re-encoding sorts keys, so only do it when something was dropped
		if changed {
			out.RawQuery = q.Encode()
		}
	}
	return out.String()
}
