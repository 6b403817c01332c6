package transform

import (
	"strconv"
	"strings"

	gohtml "html"

	"golang.org/x/net/html"
)

// jsxAttrNames maps HTML attribute names to their JSX spelling. Names not
// listed (including data-* and aria-*) are kept as they are.
var jsxAttrNames = map[string]string{
	"class":             "className",
	"for":               "htmlFor",
	"frameborder":       "frameBorder",
	"allowfullscreen":   "allowFullScreen",
	"allowtransparency": "allowTransparency",
	"marginwidth":       "marginWidth",
	"marginheight":      "marginHeight",
	"tabindex":          "tabIndex",
	"crossorigin":       "crossOrigin",
	"referrerpolicy":    "referrerPolicy",
	"srcset":            "srcSet",
	"srcdoc":            "srcDoc",
	"autoplay":          "autoPlay",
	"playsinline":       "playsInline",
	"charset":           "charSet",
	"datetime":          "dateTime",
	"colspan":           "colSpan",
	"rowspan":           "rowSpan",
	"maxlength":         "maxLength",
	"readonly":          "readOnly",
	"contenteditable":   "contentEditable",
	"cellpadding":       "cellPadding",
	"cellspacing":       "cellSpacing",
	"accesskey":         "accessKey",
	"enctype":           "encType",
	"novalidate":        "noValidate",
	"usemap":            "useMap",
}

var booleanAttrs = map[string]bool{
	"allowfullscreen": true,
	"async":           true,
	"autoplay":        true,
	"controls":        true,
	"defer":           true,
	"disabled":        true,
	"hidden":          true,
	"loop":            true,
	"muted":           true,
	"nomodule":        true,
	"playsinline":     true,
	"readonly":        true,
	"required":        true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func jsxAttrName(name string) string {
	if n, ok := jsxAttrNames[name]; ok {
		return n
	}
	return name
}

// jsxAttr formats one attribute in JSX syntax.
func jsxAttr(name, value string) string {
	switch {
	case name == "style":
		return "style={" + styleObject(value) + "}"
	case booleanAttrs[name] && (value == "" || strings.EqualFold(value, name) || value == "true"):
		return jsxAttrName(name) + "={true}"
	}
	return jsxAttrName(name) + `="` + gohtml.EscapeString(value) + `"`
}

// styleObject converts "max-width: 540px; margin:0" into the object
// literal {maxWidth: "540px", margin: "0"}.
func styleObject(css string) string {
	var parts []string
	for _, decl := range strings.Split(css, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		val = strings.TrimSpace(val)
		if prop == "" {
			continue
		}
		parts = append(parts, camelProperty(prop)+": "+strconv.Quote(val))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func camelProperty(prop string) string {
	if strings.HasPrefix(prop, "--") {
		return strconv.Quote(prop)
	}
	prop = strings.ToLower(prop)
	if strings.HasPrefix(prop, "-ms-") {
		prop = prop[1:]
	}
	var b strings.Builder
	upper := false
	for i, r := range prop {
		if r == '-' {
			upper = i > 0
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// innerHTML formats a raw element body as a JSX expression attribute.
func innerHTML(body string) string {
	return "dangerouslySetInnerHTML={{__html: " + strconv.Quote(body) + "}}"
}

// toJSX rewrites an HTML fragment into JSX. Comments and doctypes are
// dropped; script and style bodies move into dangerouslySetInnerHTML.
func toJSX(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			b.WriteString("<" + tag)
			for _, a := range tokenAttrs(z, hasAttr) {
				b.WriteString(" " + jsxAttr(a.Key, a.Val))
			}

			if tag == "script" || tag == "style" {
				body := rawBody(z, tag)
				if strings.TrimSpace(body) != "" {
					b.WriteString(" " + innerHTML(body))
				}
				b.WriteString(" />")
				continue
			}
			if tt == html.SelfClosingTagToken || voidElements[tag] {
				b.WriteString(" />")
				continue
			}
			b.WriteString(">")

		case html.EndTagToken:
			name, _ := z.TagName()
			if voidElements[string(name)] {
				continue
			}
			b.WriteString("</" + string(name) + ">")

		case html.TextToken:
			b.WriteString(escapeJSXText(string(z.Raw())))
		}
	}
}

func tokenAttrs(z *html.Tokenizer, more bool) []html.Attribute {
	var attrs []html.Attribute
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		attrs = append(attrs, html.Attribute{Key: string(key), Val: string(val)})
	}
	return attrs
}

// rawBody consumes tokens up to the end tag of a raw text element.
func rawBody(z *html.Tokenizer, tag string) string {
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == tag {
				return b.String()
			}
			b.Write(z.Raw())
		default:
			b.Write(z.Raw())
		}
	}
}

func escapeJSXText(s string) string {
	return strings.NewReplacer("{", `{"{"}`, "}", `{"}"}`).Replace(s)
}
