// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// Env is the per-record context handed to transforms.
type Env struct {
	RecordID string
	Document map[string]any
	Files    []types.FileDescriptor
	Vocab    *Vocabulary
	Options  Options

	warnings []string
}

// Warn records a non-fatal note for the current record.
func (e *Env) Warn(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// Transform converts a source value into its destination shape. Returning
// nil (or an empty value) lets the rule apply its default or required
// check. Errors fail the record.
type Transform func(env *Env, value any) (any, error)

func builtinTransforms() map[string]Transform {
	return map[string]Transform{
		"text":                textValue,
		"date":                dateValue,
		"access_right":        accessRight,
		"files_enabled":       filesEnabled,
		"resource_type":       resourceType,
		"creators":            creators,
		"contributors":        contributors,
		"license":             license,
		"subjects":            subjects,
		"languages":           languages,
		"related_identifiers": relatedIdentifiers,
		"doi_pid":             doiPID,
	}
}

func textValue(_ *Env, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	}
	return nil, fmt.Errorf("expected text, got %T", v)
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// dateValue accepts EDTF-style dates: YYYY, YYYY-MM, YYYY-MM-DD, or a
// range of two such dates separated by "/".
func dateValue(_ *Env, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a date string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, part := range strings.SplitN(s, "/", 2) {
		if !parsesAsDate(part) {
			return nil, fmt.Errorf("invalid date %q", s)
		}
	}
	return s, nil
}

func parsesAsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func accessRight(env *Env, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	term, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected an access right string, got %T", v)
	}
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	out, ok := translate(env.Vocab.AccessRights, term)
	if !ok {
		return nil, unknownTerm(term, "unrecognized access right %q")
	}
	return out, nil
}

func filesEnabled(env *Env, _ any) (any, error) {
	return env.Options.IncludeFiles && len(env.Files) > 0, nil
}

func resourceType(env *Env, v any) (any, error) {
	term, err := resourceTypeTerm(v)
	if err != nil || term == "" {
		return nil, err
	}
	id, ok := translate(env.Vocab.ResourceTypes, term)
	if !ok {
		return nil, unknownTerm(term, "unrecognized resource type %q")
	}
	return map[string]any{"id": id}, nil
}

// resourceTypeTerm accepts {"type","subtype"}, {"id"} or a bare string.
func resourceTypeTerm(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case map[string]any:
		if id := stringField(x, "id"); id != "" {
			return id, nil
		}
		typ := stringField(x, "type")
		sub := stringField(x, "subtype")
		if typ == "" {
			return "", nil
		}
		if sub == "" {
			return typ, nil
		}
		return typ + "-" + sub, nil
	}
	return "", fmt.Errorf("unexpected resource type value %T", v)
}

func creators(env *Env, v any) (any, error) {
	return creatibutors(env, v, false)
}

func contributors(env *Env, v any) (any, error) {
	return creatibutors(env, v, true)
}

func creatibutors(env *Env, v any, withRole bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %d is not an object", i+1)
		}
		c, err := creatibutor(env, entry, withRole)
		if err != nil {
			return nil, prefixed(err, fmt.Sprintf("entry %d", i+1))
		}
		out = append(out, c)
	}
	return out, nil
}

func creatibutor(env *Env, entry map[string]any, withRole bool) (map[string]any, error) {
	// Records from the newer Zenodo API already carry the destination shape.
	if _, ok := entry["person_or_org"].(map[string]any); ok {
		if withRole {
			if _, ok := entry["role"]; !ok {
				entry["role"] = map[string]any{"id": "other"}
			}
		}
		return entry, nil
	}

	family, given, err := splitName(stringField(entry, "name"))
	if err != nil {
		return nil, err
	}
	person := map[string]any{
		"type":        "personal",
		"family_name": family,
	}
	if given != "" {
		person["given_name"] = given
	}
	if orcid := stringField(entry, "orcid"); orcid != "" {
		person["identifiers"] = []any{
			map[string]any{"identifier": orcid, "scheme": "orcid"},
		}
	}

	out := map[string]any{"person_or_org": person}
	if aff := stringField(entry, "affiliation"); aff != "" {
		out["affiliations"] = []any{map[string]any{"name": aff}}
	}
	if withRole {
		term := stringField(entry, "type")
		if term == "" {
			term = "other"
		}
		role, ok := translate(env.Vocab.ContributorRoles, term)
		if !ok {
			return nil, unknownTerm(term, "unrecognized contributor role %q")
		}
		out["role"] = map[string]any{"id": role}
	}
	return out, nil
}

// splitName splits "Family, Given" on the first comma. Without a comma the
// last word is the family name and the rest is the given name.
func splitName(name string) (family, given string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New("empty creator name")
	}
	if f, g, ok := strings.Cut(name, ","); ok {
		family = strings.TrimSpace(f)
		if family == "" {
			return "", "", fmt.Errorf("creator name %q has no family name", name)
		}
		return family, strings.TrimSpace(g), nil
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], " "), nil
}

func license(env *Env, v any) (any, error) {
	var term string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		term = x
	case map[string]any:
		term = stringField(x, "id")
	default:
		return nil, fmt.Errorf("unexpected license value %T", v)
	}
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	id, ok := translate(env.Vocab.Licenses, term)
	if !ok {
		return nil, unknownTerm(term, "unrecognized license %q")
	}
	return []any{map[string]any{"id": id}}, nil
}

func subjects(env *Env, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a keyword list, got %T", v)
	}
	var out []any
	for i, item := range list {
		kw, ok := item.(string)
		if !ok {
			env.Warn("keyword %d is not text; dropped", i+1)
			continue
		}
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, map[string]any{"subject": kw})
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func languages(_ *Env, v any) (any, error) {
	var terms []string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		terms = []string{x}
	case []any:
		for _, item := range x {
			switch it := item.(type) {
			case string:
				terms = append(terms, it)
			case map[string]any:
				terms = append(terms, stringField(it, "id"))
			}
		}
	default:
		return nil, fmt.Errorf("unexpected language value %T", v)
	}

	var out []any
	for _, term := range terms {
		id := normalizeTerm(term)
		if id == "" {
			continue
		}
		if !isLanguageCode(id) {
			return nil, unknownTerm(term, "unrecognized language %q")
		}
		out = append(out, map[string]any{"id": id})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// isLanguageCode reports whether s is an ISO 639-3 style three letter code.
func isLanguageCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func relatedIdentifiers(env *Env, v any) (any, error) {
	var out []any
	if env.Options.IncludePIDs {
		if doi := sourceDOI(env.Document); doi != "" {
			out = append(out, map[string]any{
				"identifier":    doi,
				"scheme":        "doi",
				"relation_type": relationType("isderivedfrom", env.Vocab.RelationTypes["isderivedfrom"]),
				"resource_type": map[string]any{"id": "publication"},
			})
		}
	}

	if v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list, got %T", v)
		}
		for i, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				env.Warn("related identifier %d is not an object; dropped", i+1)
				continue
			}
			if ri, ok := relatedIdentifier(env, entry); ok {
				out = append(out, ri)
			}
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func relatedIdentifier(env *Env, entry map[string]any) (map[string]any, bool) {
	identifier := stringField(entry, "identifier")
	if identifier == "" {
		env.Warn("related identifier without identifier; dropped")
		return nil, false
	}
	scheme := normalizeTerm(stringField(entry, "scheme"))
	if scheme == "" {
		env.Warn("related identifier %s has no scheme; dropped", identifier)
		return nil, false
	}

	relation := stringField(entry, "relation")
	if relation == "" {
		switch rt := entry["relation_type"].(type) {
		case string:
			relation = rt
		case map[string]any:
			relation = stringField(rt, "id")
		}
	}
	title, ok := translate(env.Vocab.RelationTypes, relation)
	if !ok {
		env.Warn("related identifier %s: unrecognized relation %q; dropped", identifier, relation)
		return nil, false
	}

	ri := map[string]any{
		"identifier":    identifier,
		"scheme":        scheme,
		"relation_type": relationType(normalizeTerm(relation), title),
	}
	if term, err := resourceTypeTerm(entry["resource_type"]); err == nil && term != "" {
		if id, ok := translate(env.Vocab.ResourceTypes, term); ok {
			ri["resource_type"] = map[string]any{"id": id}
		} else {
			env.Warn("related identifier %s: unrecognized resource type %q; resource type dropped", identifier, term)
		}
	}
	return ri, true
}

func relationType(id, title string) map[string]any {
	return map[string]any{
		"id":    id,
		"title": map[string]any{"en": title},
	}
}

func doiPID(env *Env, v any) (any, error) {
	doi, _ := v.(string)
	doi = cleanDOI(doi)
	if doi == "" {
		doi = sourceDOI(env.Document)
	}
	if doi == "" {
		return nil, nil
	}
	return map[string]any{"identifier": doi, "provider": "external"}, nil
}

func sourceDOI(doc map[string]any) string {
	for _, path := range []string{"doi", "metadata.doi"} {
		if s, ok := lookup(doc, path).(string); ok {
			if doi := cleanDOI(s); doi != "" {
				return doi
			}
		}
	}
	return ""
}

func cleanDOI(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func unknownTerm(term, format string) *MappingError {
	term = strings.TrimSpace(term)
	return &MappingError{Term: term, Reason: fmt.Sprintf(format, term)}
}

func prefixed(err error, prefix string) error {
	var me *MappingError
	if errors.As(err, &me) {
		out := *me
		out.Reason = prefix + ": " + out.Reason
		return &out
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
