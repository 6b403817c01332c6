package transform

import (
	"context"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	ctxKey    = parser.NewContextKey()
	errorKey  = parser.NewContextKey()
	reportKey = parser.NewContextKey()
)

// NewParserContext returns a parser.Context carrying ctx, so that the
// rewrite run during parsing honours its deadline and logger.
func NewParserContext(ctx context.Context) parser.Context {
	pc := parser.NewContext()
	pc.Set(ctxKey, ctx)
	return pc
}

// ErrorFrom returns the rewrite error recorded while parsing with pc.
func ErrorFrom(pc parser.Context) error {
	if err, ok := pc.Get(errorKey).(error); ok {
		return err
	}
	return nil
}

// ReportFrom returns the rewrite report recorded while parsing with pc.
func ReportFrom(pc parser.Context) (Report, bool) {
	rep, ok := pc.Get(reportKey).(Report)
	return rep, ok
}

type extension struct {
	t *Transform
}

// Extension returns a goldmark extender that rewrites links while parsing
// and renders the resulting nodes.
func Extension(t *Transform) goldmark.Extender {
	return &extension{t: t}
}

func (e *extension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&astTransformer{t: e.t}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(NewRenderer(e.t.opts.JSX), 500),
	))
}

type astTransformer struct {
	t *Transform
}

func (a *astTransformer) Transform(doc *gast.Document, reader text.Reader, pc parser.Context) {
	ctx, ok := pc.Get(ctxKey).(context.Context)
	if !ok {
		ctx = context.Background()
	}

	// Rewrite logs the failure itself; goldmark has no error path here.
	rep, err := a.t.Rewrite(ctx, doc, reader.Source())
	pc.Set(reportKey, rep)
	if err != nil {
		pc.Set(errorKey, err)
	}
}
