// Package embed holds the client-side loader that activates oEmbed
// placeholders.
package embed

import "embed"

// Assets contains the loader script and stylesheet.
//
//go:embed loader.js loader.css
var Assets embed.FS

// LoaderScript returns the loader JavaScript.
func LoaderScript() string { return mustRead("loader.js") }

// LoaderStyle returns the loader CSS.
func LoaderStyle() string { return mustRead("loader.css") }

func mustRead(name string) string {
	b, err := Assets.ReadFile(name)
	if err != nil {
		panic("embed: missing asset " + name)
	}
	return string(b)
}
