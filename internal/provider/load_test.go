package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRules(t *testing.T) {
	data := []byte(`
providers:
  - id: peertube
    name: PeerTube
    hosts: [video.example.org]
    paths: [/w/]
    kind: video
    endpoint: https://video.example.org/services/oembed?format=json&url={url}
  - id: gallery
    hosts: ["*.gallery.example"]
    kind: Photo
`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].Kind != KindVideo || rules[0].PathPrefixes[0] != "/w/" {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].Kind != KindPhoto {
		t.Errorf("rules[1].Kind = %q, want photo", rules[1].Kind)
	}

	reg, err := Default().Extend(rules...)
	if err != nil {
		t.Fatal(err)
	}
	m, err := reg.Classify("https://video.example.org/w/abc")
	if err != nil {
		t.Fatal(err)
	}
	if m.Rule.Name != "PeerTube" {
		t.Errorf("Name = %q, want PeerTube", m.Rule.Name)
	}
	m, err = reg.Classify("https://eu.gallery.example/p/1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Rule.Name != "gallery" {
		t.Errorf("Name should default to id, got %q", m.Rule.Name)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "providers:\n  - id: a\n    hostz: [a.example]\n    kind: rich\n"},
		{"bad kind", "providers:\n  - id: a\n    hosts: [a.example]\n    kind: gif\n"},
		{"duplicate", "providers:\n  - id: a\n    hosts: [a.example]\n    kind: rich\n  - id: a\n    hosts: [b.example]\n    kind: rich\n"},
		{"no hosts", "providers:\n  - id: a\n    kind: rich\n"},
		{"not yaml", "providers: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tc.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  - id: a\n    hosts: [a.example]\n    kind: rich\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "a" {
		t.Errorf("rules = %+v", rules)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
