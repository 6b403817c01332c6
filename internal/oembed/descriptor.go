package oembed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/air-gapped/embedmark/internal/provider"
)

// Descriptor is the normalized result of resolving one URL.
type Descriptor struct {
	URL          string
	Kind         provider.Kind
	Title        string
	ProviderName string
	AuthorName   string

	// Photo embeds.
	ImageURL string
	Width    int
	Height   int

	// Rich and video embeds.
	HTML string

	ThumbnailURL string
}

// HasImage reports whether the descriptor carries a direct image.
func (d Descriptor) HasImage() bool { return d.ImageURL != "" }

// HasHTML reports whether the descriptor carries embed markup.
func (d Descriptor) HasHTML() bool { return strings.TrimSpace(d.HTML) != "" }

// payload is the raw oEmbed response. Providers disagree on field types,
// so dimensions are decoded as raw JSON and interpreted later.
type payload struct {
	Type            string          `json:"type"`
	Title           string          `json:"title"`
	ProviderName    string          `json:"provider_name"`
	AuthorName      string          `json:"author_name"`
	URL             string          `json:"url"`
	Image           string          `json:"image"`
	HTML            string          `json:"html"`
	Width           json.RawMessage `json:"width"`
	Height          json.RawMessage `json:"height"`
	ThumbnailURL    string          `json:"thumbnail_url"`
	ThumbnailWidth  json.RawMessage `json:"thumbnail_width"`
	ThumbnailHeight json.RawMessage `json:"thumbnail_height"`
	Error           json.RawMessage `json:"error"`
}

// typeAliases maps non-standard type values seen in the wild.
var typeAliases = map[string]provider.Kind{
	"image": provider.KindPhoto,
	"img":   provider.KindPhoto,
	"html":  provider.KindRich,
	"embed": provider.KindRich,
	"audio": provider.KindRich,
	"movie": provider.KindVideo,
}

// decode parses body and normalizes it against rule.
func decode(body []byte, rule provider.Rule, rawURL string) (Descriptor, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Descriptor{}, fmt.Errorf("decode oembed response: %w", err)
	}
	if msg := errorMessage(p.Error); msg != "" {
		return Descriptor{}, fmt.Errorf("provider error: %s", msg)
	}

	d := Descriptor{
		URL:          rawURL,
		Title:        strings.TrimSpace(p.Title),
		ProviderName: strings.TrimSpace(p.ProviderName),
		AuthorName:   strings.TrimSpace(p.AuthorName),
		HTML:         strings.TrimSpace(p.HTML),
		ThumbnailURL: strings.TrimSpace(p.ThumbnailURL),
		Width:        dimension(p.Width),
		Height:       dimension(p.Height),
	}
	if d.ProviderName == "" {
		d.ProviderName = rule.Name
	}

	kind := kindOf(p.Type, rule.Kind)

	image := strings.TrimSpace(p.URL)
	if image == "" {
		image = strings.TrimSpace(p.Image)
	}
	switch kind {
	case provider.KindPhoto:
		d.ImageURL = image
	case provider.KindLink:
		// A link response only embeds something if it carries a picture
		// or markup of its own.
		d.ImageURL = image
		if d.ImageURL == "" && d.HTML == "" && d.ThumbnailURL != "" {
			d.ImageURL = d.ThumbnailURL
			d.Width = dimension(p.ThumbnailWidth)
			d.Height = dimension(p.ThumbnailHeight)
		}
	}

	// Ambiguous responses fall back to whatever the payload can actually
	// render.
	switch kind {
	case provider.KindPhoto:
		if !d.HasImage() && d.HasHTML() {
			kind = provider.KindRich
		}
	case provider.KindRich, provider.KindVideo:
		if !d.HasHTML() && image != "" {
			kind = provider.KindPhoto
			d.ImageURL = image
		}
	}
	d.Kind = kind

	if !d.HasImage() && !d.HasHTML() {
		return Descriptor{}, fmt.Errorf("nothing to embed in %s response", kind)
	}
	return d, nil
}

func kindOf(raw string, fallback provider.Kind) provider.Kind {
	s := strings.ToLower(strings.TrimSpace(raw))
	if k, ok := provider.ParseKind(s); ok {
		return k
	}
	if k, ok := typeAliases[s]; ok {
		return k
	}
	return fallback
}

// dimension accepts 480, 480.0, "480", "480px". Relative values like
// "100%" yield 0.
func dimension(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0
		}
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int(v)
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
