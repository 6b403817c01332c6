package transform

import (
	gohtml "html"
	"strconv"
	"strings"

	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	assets "github.com/air-gapped/embedmark/embed"
)

// Renderer renders replacement nodes. In JSX mode attribute names and
// quoting follow component conventions; the element structure is the same.
type Renderer struct {
	jsx bool
}

// NewRenderer returns a node renderer for the embed node kinds.
func NewRenderer(jsx bool) renderer.NodeRenderer {
	return &Renderer{jsx: jsx}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *Renderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindImage, r.renderImage)
	reg.Register(KindLazyImage, r.renderLazyImage)
	reg.Register(KindHTML, r.renderHTML)
	reg.Register(KindPlaceholder, r.renderPlaceholder)
	reg.Register(KindLoader, r.renderLoader)
}

func (r *Renderer) renderImage(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*Image)

	_, _ = w.WriteString("<img")
	r.attr(w, "src", n.Src)
	r.attr(w, "alt", n.Alt)
	r.dimension(w, "width", n.Width)
	r.dimension(w, "height", n.Height)
	if p := n.Parent(); p != nil && p.Kind() == KindLazyImage {
		r.attr(w, "loading", "lazy")
		r.attr(w, "decoding", "async")
	}
	r.closeVoid(w)
	return gast.WalkContinue, nil
}

func (r *Renderer) renderLazyImage(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	n := node.(*LazyImage)
	if entering {
		_, _ = w.WriteString("<span")
		r.attr(w, "class", "oembed-lazy")
		r.attr(w, "data-oembed-provider", n.Provider)
		_ = w.WriteByte('>')
	} else {
		_, _ = w.WriteString("</span>")
	}
	return gast.WalkContinue, nil
}

func (r *Renderer) renderHTML(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*HTML)

	_, _ = w.WriteString("<span")
	r.attr(w, "class", "oembed oembed-"+n.ProviderID)
	r.attr(w, "data-oembed-provider", n.Provider)
	_ = w.WriteByte('>')
	_, _ = w.WriteString(r.markup(n.HTML))
	_, _ = w.WriteString("</span>")
	return gast.WalkSkipChildren, nil
}

func (r *Renderer) renderPlaceholder(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*Placeholder)

	_, _ = w.WriteString("<span")
	r.attr(w, "class", "oembed-placeholder")
	r.attr(w, "data-oembed-provider", n.Provider)
	r.attr(w, "data-oembed-id", n.ProviderID)
	r.attr(w, "data-oembed-ref", n.LoaderRef)
	r.attr(w, "data-oembed-url", n.URL)
	_ = w.WriteByte('>')

	_, _ = w.WriteString("<a")
	r.attr(w, "href", n.URL)
	_ = w.WriteByte('>')
	label := n.Title
	if label == "" {
		label = n.URL
	}
	if n.Thumbnail != "" {
		_, _ = w.WriteString("<img")
		r.attr(w, "src", n.Thumbnail)
		r.attr(w, "alt", label)
		r.attr(w, "loading", "lazy")
		r.closeVoid(w)
	} else {
		_, _ = w.WriteString(r.text(label))
	}
	_, _ = w.WriteString("</a>")

	if r.jsx {
		_, _ = w.WriteString("<template " + innerHTML(n.HTML) + " />")
	} else {
		_, _ = w.WriteString("<template>" + n.HTML + "</template>")
	}
	_, _ = w.WriteString("</span>")
	return gast.WalkSkipChildren, nil
}

func (r *Renderer) renderLoader(w util.BufWriter, _ []byte, node gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering {
		return gast.WalkContinue, nil
	}
	n := node.(*Loader)

	r.rawElement(w, "style", assets.LoaderStyle(), nil)
	r.rawElement(w, "script", assets.LoaderScript(), []string{"data-oembed-providers", strings.Join(n.Providers, ",")})
	return gast.WalkSkipChildren, nil
}

// rawElement writes a style or script element tagged with the loader ref.
func (r *Renderer) rawElement(w util.BufWriter, tag, body string, extra []string) {
	_, _ = w.WriteString("<" + tag)
	r.attr(w, "data-oembed-ref", LoaderRef)
	for i := 0; i+1 < len(extra); i += 2 {
		r.attr(w, extra[i], extra[i+1])
	}
	if r.jsx {
		_, _ = w.WriteString(" " + innerHTML(body) + " />\n")
		return
	}
	_, _ = w.WriteString(">\n" + body + "</" + tag + ">\n")
}

func (r *Renderer) attr(w util.BufWriter, name, value string) {
	if r.jsx {
		_, _ = w.WriteString(" " + jsxAttr(name, value))
		return
	}
	_, _ = w.WriteString(" " + name + `="` + gohtml.EscapeString(value) + `"`)
}

// dimension writes a numeric attribute, omitted when unknown.
func (r *Renderer) dimension(w util.BufWriter, name string, v int) {
	if v <= 0 {
		return
	}
	if r.jsx {
		_, _ = w.WriteString(" " + name + "={" + strconv.Itoa(v) + "}")
		return
	}
	_, _ = w.WriteString(" " + name + `="` + strconv.Itoa(v) + `"`)
}

func (r *Renderer) closeVoid(w util.BufWriter) {
	if r.jsx {
		_, _ = w.WriteString(" />")
		return
	}
	_ = w.WriteByte('>')
}

func (r *Renderer) markup(html string) string {
	if r.jsx {
		return toJSX(html)
	}
	return html
}

func (r *Renderer) text(s string) string {
	s = gohtml.EscapeString(s)
	if r.jsx {
		return escapeJSXText(s)
	}
	return s
}
