package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"github.com/air-gapped/embedmark/internal/oembed"
)

func convert(t *testing.T, tr *Transform, src string) (string, parser.Context) {
	t.Helper()
	md := goldmark.New(goldmark.WithExtensions(Extension(tr)))
	pc := NewParserContext(context.Background())
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf, parser.WithContext(pc)); err != nil {
		t.Fatal(err)
	}
	return buf.String(), pc
}

func plain(t *testing.T, src string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(src), &buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestExtension_NonMatchesRenderIdentically(t *testing.T) {
	src := "# Notes\n\nSee [docs](https://docs.example/guide) and <https://other.example/x>.\n\n```\nhttps://video-provider.example/watch?v=1\n```\n"
	got, pc := convert(t, newTestTransform(t, Options{}, newHostFetcher()), src)
	if want := plain(t, src); got != want {
		t.Errorf("output differs from plain render:\ngot:  %q\nwant: %q", got, want)
	}
	rep, ok := ReportFrom(pc)
	if !ok || rep.Unmatched != 2 {
		t.Errorf("report = %+v, %v", rep, ok)
	}
}

func TestExtension_SyncWidgetHTML(t *testing.T) {
	got, pc := convert(t, newTestTransform(t, Options{SyncWidget: true}, newHostFetcher()),
		"Watch [this](https://video-provider.example/watch?v=1) now.\n")

	want := `<p>Watch <span class="oembed oembed-video-provider" data-oembed-provider="Video Provider">` +
		`<iframe src="https://video-provider.example/embed/1" frameborder="0" allowfullscreen></iframe></span> now.</p>`
	if !strings.Contains(got, want) {
		t.Errorf("output:\n%s\nwant to contain:\n%s", got, want)
	}
	if strings.Contains(got, "oembed-placeholder") || strings.Contains(got, "<script") {
		t.Error("sync widget output must not carry placeholder or loader")
	}
	if err := ErrorFrom(pc); err != nil {
		t.Errorf("ErrorFrom = %v", err)
	}
}

func TestExtension_PlaceholderAndLoader(t *testing.T) {
	src := "[a](https://video-provider.example/watch?v=1)\n\n[b](https://video-provider.example/watch?v=2)\n"
	got, _ := convert(t, newTestTransform(t, Options{}, newHostFetcher()), src)

	for _, want := range []string{
		`<span class="oembed-placeholder" data-oembed-provider="Video Provider" data-oembed-id="video-provider" data-oembed-ref="oembed-loader" data-oembed-url="https://video-provider.example/watch?v=1">`,
		`<a href="https://video-provider.example/watch?v=1">a</a>`,
		`<template><iframe src="https://video-provider.example/embed/1"`,
		`<style data-oembed-ref="oembed-loader">`,
		`<script data-oembed-ref="oembed-loader" data-oembed-providers="Video Provider">`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if n := strings.Count(got, `<script data-oembed-ref="oembed-loader"`); n != 1 {
		t.Errorf("loader scripts = %d, want 1", n)
	}
	if strings.Index(got, "<style") < strings.LastIndex(got, "oembed-placeholder\"") {
		t.Error("loader must follow the placeholders")
	}
}

func TestExtension_PlaceholderUsesTitleForBareURL(t *testing.T) {
	got, _ := convert(t, newTestTransform(t, Options{}, newHostFetcher()), "<https://video-provider.example/watch?v=1>\n")
	if !strings.Contains(got, `<a href="https://video-provider.example/watch?v=1">Clip</a>`) {
		t.Errorf("output:\n%s", got)
	}
}

func TestExtension_Images(t *testing.T) {
	src := "[Sunset](https://pics.example/p/1)\n"

	got, _ := convert(t, newTestTransform(t, Options{}, newHostFetcher()), src)
	if want := `<p><img src="https://pics.example/sunset.jpg" alt="Sunset" width="800" height="600"></p>`; !strings.Contains(got, want) {
		t.Errorf("plain image:\n%s", got)
	}

	got, _ = convert(t, newTestTransform(t, Options{AsyncImg: true}, newHostFetcher()), src)
	want := `<span class="oembed-lazy" data-oembed-provider="Pics"><img src="https://pics.example/sunset.jpg" alt="Sunset" width="800" height="600" loading="lazy" decoding="async"></span>`
	if !strings.Contains(got, want) {
		t.Errorf("lazy image:\n%s", got)
	}
}

func TestExtension_JSX(t *testing.T) {
	src := "[Sunset](https://pics.example/p/1)\n\n[v](https://video-provider.example/watch?v=1)\n"

	got, _ := convert(t, newTestTransform(t, Options{JSX: true, SyncWidget: true}, newHostFetcher()), src)
	for _, want := range []string{
		`<img src="https://pics.example/sunset.jpg" alt="Sunset" width={800} height={600} />`,
		`<span className="oembed oembed-video-provider"`,
		`frameBorder="0"`,
		`allowFullScreen={true}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, ` class="oembed`) {
		t.Error("class attribute leaked into JSX output")
	}

	got, _ = convert(t, newTestTransform(t, Options{JSX: true}, newHostFetcher()), src)
	for _, want := range []string{
		`<span className="oembed-placeholder"`,
		`<template dangerouslySetInnerHTML={{__html: "<iframe`,
		`<script data-oembed-ref="oembed-loader" data-oembed-providers="Video Provider" dangerouslySetInnerHTML={{__html: `,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
}

func TestExtension_UnrecoverableError(t *testing.T) {
	f := oembed.FetcherFunc(func(ctx context.Context, req oembed.Request) ([]byte, error) {
		return nil, fmt.Errorf("store offline: %w", oembed.ErrUnrecoverable)
	})
	src := "[a](https://video-provider.example/watch?v=1)\n"
	got, pc := convert(t, newTestTransform(t, Options{}, f), src)

	if !errors.Is(ErrorFrom(pc), oembed.ErrUnrecoverable) {
		t.Errorf("ErrorFrom = %v", ErrorFrom(pc))
	}
	if got != plain(t, src) {
		t.Errorf("output should be the untouched document, got:\n%s", got)
	}
}

func TestErrorFrom_Empty(t *testing.T) {
	pc := parser.NewContext()
	if err := ErrorFrom(pc); err != nil {
		t.Errorf("ErrorFrom = %v", err)
	}
	if _, ok := ReportFrom(pc); ok {
		t.Error("ReportFrom reported a value for a fresh context")
	}
}
