// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapper

import (
	_ "embed"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed vocabularies.yaml
var defaultVocabulary []byte

// Vocabulary holds the fixed term tables used to translate enumerated
// fields. Keys are source terms in lower case.
type Vocabulary struct {
	ResourceTypes    map[string]string `yaml:"resource_types"`
	Licenses         map[string]string `yaml:"licenses"`
	AccessRights     map[string]string `yaml:"access_rights"`
	ContributorRoles map[string]string `yaml:"contributor_roles"`
	// RelationTypes maps a relation id to its English title.
	RelationTypes map[string]string `yaml:"relation_types"`
}

// DefaultVocabulary returns the tables embedded in the binary.
func DefaultVocabulary() (*Vocabulary, error) {
	return LoadVocabulary(defaultVocabulary)
}

// LoadVocabulary parses YAML vocabulary tables. Keys are normalized to
// lower case.
func LoadVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	if len(v.ResourceTypes) == 0 {
		return nil, fmt.Errorf("vocabulary has no resource_types")
	}
	v.ResourceTypes = normalizeKeys(v.ResourceTypes)
	v.Licenses = normalizeKeys(v.Licenses)
	v.AccessRights = normalizeKeys(v.AccessRights)
	v.ContributorRoles = normalizeKeys(v.ContributorRoles)
	v.RelationTypes = normalizeKeys(v.RelationTypes)
	return &v, nil
}

func normalizeKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[normalizeTerm(k)] = v
	}
	return out
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func translate(table map[string]string, term string) (string, bool) {
	v, ok := table[normalizeTerm(term)]
	return v, ok
}
