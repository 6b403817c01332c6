// Package render converts markdown documents to HTML with embeds resolved.
package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	gmermaid "go.abhg.dev/goldmark/mermaid"
	"gopkg.in/yaml.v3"

	"github.com/air-gapped/embedmark/internal/transform"
)

// Meta holds metadata extracted during rendering.
type Meta struct {
	HeadingCount   int
	HasMermaid     bool
	CodeBlockCount int
	Headings       []Heading
	Title          string // from first H1 or frontmatter

	// Embeds counts what the rewrite did with each link candidate.
	Embeds transform.Report
	// EmbedErr is the rewrite error, if the rewrite was abandoned.
	EmbedErr error
}

// Heading represents a heading in the document for TOC generation.
type Heading struct {
	Level int
	Text  string
	ID    string
}

// Renderer renders markdown content to HTML.
type Renderer struct {
	md goldmark.Markdown
	tr *transform.Transform
}

// New creates a markdown renderer that rewrites embeddable links with tr.
func New(tr *transform.Transform) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
			extension.Typographer,
			&ChromaHighlighting{},
			&gmermaid.Extender{},
			transform.Extension(tr),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)

	return &Renderer{md: md, tr: tr}
}

// Transform returns the transform the renderer was built with.
func (r *Renderer) Transform() *transform.Transform {
	return r.tr
}

// Render converts markdown source to HTML and extracts metadata.
//
// When the embed rewrite is abandoned the document is rendered without any
// substitution, and that output is returned together with the rewrite error.
func (r *Renderer) Render(ctx context.Context, source []byte) ([]byte, *Meta, error) {
	content, title := stripFrontmatter(source)

	pc := transform.NewParserContext(ctx)
	doc := r.md.Parser().Parse(text.NewReader(content), parser.WithContext(pc))

	meta := &Meta{Title: title, EmbedErr: transform.ErrorFrom(pc)}
	meta.Embeds, _ = transform.ReportFrom(pc)
	extractMeta(doc, content, meta)

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, content, doc); err != nil {
		return nil, nil, fmt.Errorf("render markdown: %w", err)
	}
	if meta.EmbedErr != nil {
		return buf.Bytes(), meta, fmt.Errorf("embed rewrite: %w", meta.EmbedErr)
	}
	return buf.Bytes(), meta, nil
}

// extractMeta walks the AST to count headings, code blocks, and detect mermaid.
func extractMeta(doc ast.Node, source []byte, meta *Meta) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			meta.HeadingCount++
			var text strings.Builder
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					text.Write(t.Segment.Value(source))
				}
			}
			id := ""
			if idAttr, ok := node.AttributeString("id"); ok {
				if idBytes, ok := idAttr.([]byte); ok {
					id = string(idBytes)
				}
			}
			meta.Headings = append(meta.Headings, Heading{
				Level: node.Level,
				Text:  text.String(),
				ID:    id,
			})
			if meta.Title == "" && node.Level == 1 {
				meta.Title = text.String()
			}

		case *ast.FencedCodeBlock:
			meta.CodeBlockCount++

		default:
			// mermaid replaces its fenced blocks with its own node kind
			if n.Kind() == gmermaid.Kind {
				meta.HasMermaid = true
			}
		}

		return ast.WalkContinue, nil
	})
}

var frontmatterRe = regexp.MustCompile(`(?s)\A---\n(.*?)\n?---\n`)

type frontmatter struct {
	Title string `yaml:"title"`
}

// stripFrontmatter removes YAML frontmatter and extracts the title field.
// Frontmatter that is not valid YAML is still stripped.
func stripFrontmatter(source []byte) ([]byte, string) {
	match := frontmatterRe.FindSubmatch(source)
	if match == nil {
		return source, ""
	}

	var fm frontmatter
	_ = yaml.Unmarshal(match[1], &fm)
	return source[len(match[0]):], strings.TrimSpace(fm.Title)
}
