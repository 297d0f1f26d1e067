// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapper

import (
	"encoding/json"
	"strings"
)

// Rule maps one destination field. Source and Target are dot-separated
// paths. The value read from Source is passed through the named
// Transform; an empty result falls back to Default, and a Required rule
// with neither fails the record.
type Rule struct {
	Target    string `json:"target" yaml:"target"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"`
	Required  bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default   any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// DefaultRules returns the Zenodo to InvenioRDM rule table.
func DefaultRules(opts Options) []Rule {
	rules := []Rule{
		{Target: "access.record", Required: true, Default: "public"},
		{Target: "access.files", Source: "metadata.access_right", Transform: "access_right", Required: true, Default: "public"},
		{Target: "files.enabled", Transform: "files_enabled", Required: true},
		{Target: "metadata.resource_type", Source: "metadata.resource_type", Transform: "resource_type", Required: true},
		{Target: "metadata.title", Source: "metadata.title", Transform: "text", Required: true},
		{Target: "metadata.publication_date", Source: "metadata.publication_date", Transform: "date", Required: true},
		{Target: "metadata.creators", Source: "metadata.creators", Transform: "creators", Required: true},
		{Target: "metadata.contributors", Source: "metadata.contributors", Transform: "contributors"},
		{Target: "metadata.description", Source: "metadata.description", Transform: "text"},
		{Target: "metadata.version", Source: "metadata.version", Transform: "text"},
		{Target: "metadata.rights", Source: "metadata.license", Transform: "license"},
		{Target: "metadata.subjects", Source: "metadata.keywords", Transform: "subjects"},
		{Target: "metadata.languages", Source: "metadata.language", Transform: "languages"},
		{Target: "metadata.related_identifiers", Source: "metadata.related_identifiers", Transform: "related_identifiers"},
	}
	if opts.IncludePIDs {
		rules = append(rules, Rule{Target: "pids.doi", Source: "doi", Transform: "doi_pid", Required: true})
	}
	return rules
}

func lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// deepCopy copies decoded JSON so transforms never alias the source
// document.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	case json.Number, string, bool, float64, nil:
		return x
	}
	return v
}
