package transform

import "testing"

func TestToJSX(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "iframe attributes",
			in:   `<iframe width="560" style="border:0; max-width: 100%" allowfullscreen class="player" frameborder="0"></iframe>`,
			want: `<iframe width="560" style={{border: "0", maxWidth: "100%"}} allowFullScreen={true} className="player" frameBorder="0"></iframe>`,
		},
		{
			name: "void elements self-close",
			in:   `<p>a<br>b<img src="x.png"></p>`,
			want: `<p>a<br />b<img src="x.png" /></p>`,
		},
		{
			name: "braces in text",
			in:   `<p>{hi}</p>`,
			want: `<p>{"{"}hi{"}"}</p>`,
		},
		{
			name: "external script",
			in:   `<blockquote class="twitter-tweet"><p>hi</p></blockquote><script async src="https://platform.twitter.example/widgets.js" charset="utf-8"></script>`,
			want: `<blockquote className="twitter-tweet"><p>hi</p></blockquote><script async={true} src="https://platform.twitter.example/widgets.js" charSet="utf-8" />`,
		},
		{
			name: "inline script",
			in:   `<script>var a = "<b>";</script>`,
			want: `<script dangerouslySetInnerHTML={{__html: "var a = \"<b>\";"}} />`,
		},
		{
			name: "comments dropped",
			in:   `<!-- embed --><span data-id="7" aria-label="x">ok</span>`,
			want: `<span data-id="7" aria-label="x">ok</span>`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := toJSX(tc.in); got != tc.want {
				t.Errorf("toJSX()\n got: %s\nwant: %s", got, tc.want)
			}
		})
	}
}

func TestCamelProperty(t *testing.T) {
	tests := map[string]string{
		"max-width":        "maxWidth",
		"border":           "border",
		"-ms-transform":    "msTransform",
		"BACKGROUND-COLOR": "backgroundColor",
		"--accent":         `"--accent"`,
	}
	for in, want := range tests {
		if got := camelProperty(in); got != want {
			t.Errorf("camelProperty(%q) = %q, want %q", in, got, want)
		}
	}
}
