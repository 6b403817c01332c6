package transform

import (
	"strconv"
	"strings"

	gast "github.com/yuin/goldmark/ast"
)

// LoaderRef identifies the loader block that placeholders point at.
const LoaderRef = "oembed-loader"

var (
	// KindImage is the NodeKind of Image.
	KindImage = gast.NewNodeKind("OembedImage")
	// KindLazyImage is the NodeKind of LazyImage.
	KindLazyImage = gast.NewNodeKind("OembedLazyImage")
	// KindHTML is the NodeKind of HTML.
	KindHTML = gast.NewNodeKind("OembedHTML")
	// KindPlaceholder is the NodeKind of Placeholder.
	KindPlaceholder = gast.NewNodeKind("OembedPlaceholder")
	// KindLoader is the NodeKind of Loader.
	KindLoader = gast.NewNodeKind("OembedLoader")
)

// Image is a photo embed.
type Image struct {
	gast.BaseInline
	Src    string
	Alt    string
	Width  int
	Height int
}

// NewImage returns a new Image node.
func NewImage(src, alt string, width, height int) *Image {
	return &Image{Src: src, Alt: alt, Width: width, Height: height}
}

// Kind implements Node.Kind.
func (n *Image) Kind() gast.NodeKind { return KindImage }

// Dump implements Node.Dump.
func (n *Image) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{
		"Src":    n.Src,
		"Alt":    n.Alt,
		"Width":  strconv.Itoa(n.Width),
		"Height": strconv.Itoa(n.Height),
	}, nil)
}

// LazyImage wraps a single Image child that the browser loads lazily.
type LazyImage struct {
	gast.BaseInline
	Provider string
}

// NewLazyImage returns a LazyImage holding img.
func NewLazyImage(provider string, img *Image) *LazyImage {
	n := &LazyImage{Provider: provider}
	n.AppendChild(n, img)
	return n
}

// Kind implements Node.Kind.
func (n *LazyImage) Kind() gast.NodeKind { return KindLazyImage }

// Dump implements Node.Dump.
func (n *LazyImage) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Provider": n.Provider}, nil)
}

// HTML is provider markup emitted inline.
type HTML struct {
	gast.BaseInline
	HTML       string
	Provider   string
	ProviderID string
}

// NewHTML returns a new HTML node.
func NewHTML(html, provider, providerID string) *HTML {
	return &HTML{HTML: html, Provider: provider, ProviderID: providerID}
}

// Kind implements Node.Kind.
func (n *HTML) Kind() gast.NodeKind { return KindHTML }

// Dump implements Node.Dump.
func (n *HTML) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{
		"Provider": n.Provider,
		"HTML":     n.HTML,
	}, nil)
}

// Placeholder stands in for a widget until the loader swaps in its markup.
type Placeholder struct {
	gast.BaseInline
	Provider   string
	ProviderID string
	LoaderRef  string
	URL        string
	Title      string
	Thumbnail  string
	HTML       string
}

// Kind implements Node.Kind.
func (n *Placeholder) Kind() gast.NodeKind { return KindPlaceholder }

// Dump implements Node.Dump.
func (n *Placeholder) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{
		"Provider":  n.Provider,
		"LoaderRef": n.LoaderRef,
		"URL":       n.URL,
		"Title":     n.Title,
		"Thumbnail": n.Thumbnail,
	}, nil)
}

// Loader is the block that activates every placeholder in the document.
type Loader struct {
	gast.BaseBlock
	Providers []string
}

// NewLoader returns a Loader listing the providers it serves.
func NewLoader(providers []string) *Loader {
	return &Loader{Providers: providers}
}

// Kind implements Node.Kind.
func (n *Loader) Kind() gast.NodeKind { return KindLoader }

// Dump implements Node.Dump.
func (n *Loader) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{
		"Providers": strings.Join(n.Providers, ","),
	}, nil)
}
