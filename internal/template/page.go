// Package template wraps a rendered fragment in a standalone preview
// document.
package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"

	"github.com/air-gapped/embedmark/internal/render"
)

// PageData holds all the data needed to render a full HTML page.
type PageData struct {
	Version string
	Source  string // file name or "stdin"
	Title   string
	Content []byte
	Meta    *render.Meta
}

// Renderer renders full HTML pages.
type Renderer struct {
	tmpl      *htmltemplate.Template
	chromaCSS htmltemplate.CSS
}

// NewRenderer creates a page renderer whose code blocks use the named
// chroma style.
func NewRenderer(style string) (*Renderer, error) {
	css, err := render.HighlightCSS(style)
	if err != nil {
		return nil, err
	}
	tmpl, err := htmltemplate.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Renderer{tmpl: tmpl, chromaCSS: htmltemplate.CSS(css)}, nil
}

type pageView struct {
	PageData
	Title      string
	Body       htmltemplate.HTML
	ChromaCSS  htmltemplate.CSS
	Headings   []render.Heading
	HasTOC     bool
	Embeds     int
	Failed     int
	HasMermaid bool
}

// RenderPage produces a complete HTML page.
func (r *Renderer) RenderPage(data PageData) ([]byte, error) {
	v := pageView{
		PageData:  data,
		Title:     data.Title,
		Body:      htmltemplate.HTML(data.Content),
		ChromaCSS: r.chromaCSS,
	}
	if data.Meta != nil {
		if v.Title == "" {
			v.Title = data.Meta.Title
		}
		v.Headings = data.Meta.Headings
		v.HasTOC = len(data.Meta.Headings) >= 3
		v.Embeds = data.Meta.Embeds.Substituted
		v.Failed = data.Meta.Embeds.Failed
		v.HasMermaid = data.Meta.HasMermaid
	}
	if v.Title == "" {
		v.Title = data.Source
	}
	if v.Title == "" {
		v.Title = "embedmark"
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en" data-embedmark-version="{{.Version}}">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; font: 16px/1.6 -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; color: #1f2328; }
    header { display: flex; gap: 12px; padding: 8px 16px; font-size: 13px; color: #656d76; border-bottom: 1px solid #d0d7de; }
    main { display: flex; gap: 32px; max-width: 1100px; margin: 0 auto; padding: 24px 16px; }
    nav ul { list-style: none; margin: 0; padding: 0; font-size: 14px; }
    nav li[data-level="2"] { padding-left: 12px; }
    nav li[data-level="3"] { padding-left: 24px; }
    article { flex: 1; min-width: 0; }
    .code-block pre { padding: 12px; overflow: auto; border-radius: 6px; }
{{.ChromaCSS}}
  </style>
</head>
<body>
  <header data-embeds="{{.Embeds}}" data-embed-failures="{{.Failed}}">
    <span id="embedmark-source">{{.Source}}</span>
    <span id="embedmark-embeds">{{.Embeds}} embedded{{if .Failed}}, {{.Failed}} failed{{end}}</span>
  </header>
  <main>
{{- if .HasTOC}}
    <nav id="embedmark-toc">
      <ul>
{{- range .Headings}}
        <li data-level="{{.Level}}"><a href="#{{.ID}}">{{.Text}}</a></li>
{{- end}}
      </ul>
    </nav>
{{- end}}
    <article class="markdown-body" data-has-mermaid="{{.HasMermaid}}">
{{.Body}}
    </article>
  </main>
</body>
</html>
`
