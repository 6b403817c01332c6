package provider

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Providers []ruleEntry `yaml:"providers"`
}

type ruleEntry struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Hosts    []string `yaml:"hosts"`
	Paths    []string `yaml:"paths"`
	Kind     string   `yaml:"kind"`
	Endpoint string   `yaml:"endpoint"`
}

// ParseRules decodes a YAML provider file. Unknown fields are rejected so a
// typo in a rule does not silently widen what it matches.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode provider file: %w", err)
	}

	seen := make(map[string]bool, len(f.Providers))
	rules := make([]Rule, 0, len(f.Providers))
	for i, e := range f.Providers {
		kind, ok := ParseKind(e.Kind)
		if !ok {
			return nil, fmt.Errorf("provider %d (%s): invalid kind %q", i, e.ID, e.Kind)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("provider %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true

		r := Rule{
			ID:           e.ID,
			Name:         e.Name,
			Hosts:        e.Hosts,
			PathPrefixes: e.Paths,
			Kind:         kind,
			Endpoint:     e.Endpoint,
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadFile reads extra provider rules from a YAML file.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider file: %w", err)
	}
	return ParseRules(data)
}
