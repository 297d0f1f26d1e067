// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapper

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

const sampleRecordJSON = `{
  "id": 1234,
  "doi": "10.5281/zenodo.1234",
  "metadata": {
    "title": "  Glacier melt rates 2010-2020  ",
    "publication_date": "2021-03-04",
    "access_right": "open",
    "resource_type": {"type": "publication", "subtype": "preprint"},
    "creators": [
      {"name": "Doe, Jane", "affiliation": "KTH", "orcid": "0000-0002-1825-0097"},
      {"name": "John Smith"}
    ],
    "contributors": [
      {"name": "Berg, Anna", "type": "DataCurator"}
    ],
    "description": "<p>Melt rates of Scandinavian glaciers.</p>",
    "license": {"id": "CC-BY-4.0"},
    "keywords": ["glaciers", " ", "climate"],
    "language": "eng",
    "version": "v2",
    "related_identifiers": [
      {"identifier": "10.1000/xyz", "relation": "isSupplementTo", "scheme": "doi", "resource_type": "dataset"},
      {"identifier": "https://example.org/x", "relation": "bogus", "scheme": "url"}
    ]
  },
  "files": [
    {"key": "data.csv", "size": 10, "checksum": "md5:0cc175b9c0f1b6a831c399e269772661",
     "links": {"self": "https://zenodo.org/api/files/b1/data.csv"}}
  ]
}`

func parse(t *testing.T, raw string) types.SourceRecord {
	t.Helper()
	rec, err := types.ParseSourceRecord([]byte(raw))
	require.NoError(t, err)
	return rec
}

// withMetadata returns the sample record with one metadata field replaced.
// A nil value deletes the field.
func withMetadata(t *testing.T, field string, value any) types.SourceRecord {
	t.Helper()
	rec := parse(t, sampleRecordJSON)
	md := rec.Document["metadata"].(map[string]any)
	if value == nil {
		delete(md, field)
	} else {
		md[field] = value
	}
	return rec
}

func newMapper(t *testing.T, opts Options) *Mapper {
	t.Helper()
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func TestMapSampleRecord(t *testing.T) {
	m := newMapper(t, Options{IncludePIDs: true})
	res, err := m.Map(parse(t, sampleRecordJSON))
	require.NoError(t, err)

	p := res.Record.Payload
	assert.Equal(t, "1234", res.Record.SourceID)
	assert.Equal(t, map[string]any{"record": "public", "files": "public"}, p["access"])
	assert.Equal(t, map[string]any{"enabled": false}, p["files"])
	assert.Equal(t, map[string]any{"doi": map[string]any{"identifier": "10.5281/zenodo.1234", "provider": "external"}}, p["pids"])

	md := p["metadata"].(map[string]any)
	assert.Equal(t, "Glacier melt rates 2010-2020", md["title"])
	assert.Equal(t, "2021-03-04", md["publication_date"])
	assert.Equal(t, map[string]any{"id": "publication-preprint"}, md["resource_type"])
	assert.Equal(t, []any{map[string]any{"id": "cc-by-4.0"}}, md["rights"])
	assert.Equal(t, []any{map[string]any{"subject": "glaciers"}, map[string]any{"subject": "climate"}}, md["subjects"])
	assert.Equal(t, []any{map[string]any{"id": "eng"}}, md["languages"])
	assert.Equal(t, "v2", md["version"])

	creators := md["creators"].([]any)
	require.Len(t, creators, 2)
	assert.Equal(t, map[string]any{
		"person_or_org": map[string]any{
			"type":        "personal",
			"family_name": "Doe",
			"given_name":  "Jane",
			"identifiers": []any{map[string]any{"identifier": "0000-0002-1825-0097", "scheme": "orcid"}},
		},
		"affiliations": []any{map[string]any{"name": "KTH"}},
	}, creators[0])

	contributors := md["contributors"].([]any)
	require.Len(t, contributors, 1)
	assert.Equal(t, map[string]any{"id": "datacurator"}, contributors[0].(map[string]any)["role"])

	related := md["related_identifiers"].([]any)
	require.Len(t, related, 2, "source DOI plus one valid relation")
	assert.Equal(t, "10.5281/zenodo.1234", related[0].(map[string]any)["identifier"])
	assert.Equal(t, "isderivedfrom", related[0].(map[string]any)["relation_type"].(map[string]any)["id"])
	assert.Equal(t, map[string]any{
		"identifier":    "10.1000/xyz",
		"scheme":        "doi",
		"relation_type": map[string]any{"id": "issupplementto", "title": map[string]any{"en": "Is supplement to"}},
		"resource_type": map[string]any{"id": "dataset"},
	}, related[1])

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "bogus")
	assert.Empty(t, res.Record.Files, "files are dropped when file migration is off")
}

func TestMapIsDeterministic(t *testing.T) {
	m := newMapper(t, Options{IncludePIDs: true, IncludeFiles: true})
	first, err := m.Map(parse(t, sampleRecordJSON))
	require.NoError(t, err)
	want, err := Canonical(first.Record.Payload)
	require.NoError(t, err)

	for range 20 {
		res, err := m.Map(parse(t, sampleRecordJSON))
		require.NoError(t, err)
		got, err := Canonical(res.Record.Payload)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestMapDoesNotMutateSource(t *testing.T) {
	m := newMapper(t, Options{IncludePIDs: true})
	rec := parse(t, sampleRecordJSON)
	before, err := json.Marshal(rec.Document)
	require.NoError(t, err)

	_, err = m.Map(rec)
	require.NoError(t, err)

	after, err := json.Marshal(rec.Document)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestMapFiles(t *testing.T) {
	m := newMapper(t, Options{IncludeFiles: true})
	res, err := m.Map(parse(t, sampleRecordJSON))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"enabled": true}, res.Record.Payload["files"])
	require.Len(t, res.Record.Files, 1)
	assert.Equal(t, "data.csv", res.Record.Files[0].Key)
	assert.Equal(t, "md5:0cc175b9c0f1b6a831c399e269772661", res.Record.Files[0].Checksum)
}

func TestMapWithoutPIDs(t *testing.T) {
	m := newMapper(t, Options{})
	res, err := m.Map(parse(t, sampleRecordJSON))
	require.NoError(t, err)

	assert.NotContains(t, res.Record.Payload, "pids")
	related := res.Record.Payload["metadata"].(map[string]any)["related_identifiers"].([]any)
	require.Len(t, related, 1)
	assert.Equal(t, "10.1000/xyz", related[0].(map[string]any)["identifier"])
}

func TestMapErrors(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     any
		wantField string
		wantTerm  string
	}{
		{"missing title", "title", nil, "metadata.title", ""},
		{"blank title", "title", "   ", "metadata.title", ""},
		{"missing publication date", "publication_date", nil, "metadata.publication_date", ""},
		{"malformed publication date", "publication_date", "04/03/2021", "metadata.publication_date", ""},
		{"missing creators", "creators", nil, "metadata.creators", ""},
		{"empty creators", "creators", []any{}, "metadata.creators", ""},
		{"creator without name", "creators", []any{map[string]any{"name": "  "}}, "metadata.creators", ""},
		{"missing resource type", "resource_type", nil, "metadata.resource_type", ""},
		{
			"unknown resource type",
			"resource_type", map[string]any{"type": "preprint-x"},
			"metadata.resource_type", "preprint-x",
		},
		{"unknown license", "license", map[string]any{"id": "wtfpl"}, "metadata.rights", "wtfpl"},
		{"unknown access right", "access_right", "secret", "access.files", "secret"},
		{
			"unknown contributor role",
			"contributors", []any{map[string]any{"name": "A B", "type": "Janitor"}},
			"metadata.contributors", "Janitor",
		},
		{"bad language", "language", "english", "metadata.languages", "english"},
	}

	m := newMapper(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := withMetadata(t, tt.field, tt.value)
			_, err := m.Map(rec)
			require.Error(t, err)

			var me *MappingError
			require.True(t, errors.As(err, &me), "want *MappingError, got %T", err)
			assert.Equal(t, "1234", me.RecordID)
			assert.Equal(t, tt.wantField, me.Field)
			assert.Equal(t, tt.wantTerm, me.Term)
			if tt.wantTerm != "" {
				assert.Contains(t, me.Error(), tt.wantTerm)
			}
		})
	}
}

func TestMapMissingDOIWithPIDs(t *testing.T) {
	rec := parse(t, sampleRecordJSON)
	delete(rec.Document, "doi")

	_, err := newMapper(t, Options{IncludePIDs: true}).Map(rec)
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "pids.doi", me.Field)

	_, err = newMapper(t, Options{}).Map(rec)
	assert.NoError(t, err)
}

func TestMapOptionalFieldsAbsent(t *testing.T) {
	rec := parse(t, `{
	  "id": "77",
	  "metadata": {
	    "title": "Minimal",
	    "publication_date": "2019",
	    "resource_type": {"type": "dataset"},
	    "creators": [{"name": "Cher"}]
	  }
	}`)
	res, err := newMapper(t, Options{}).Map(rec)
	require.NoError(t, err)

	md := res.Record.Payload["metadata"].(map[string]any)
	assert.ElementsMatch(t, []string{"title", "publication_date", "resource_type", "creators"}, keys(md))
	assert.Equal(t, map[string]any{"record": "public", "files": "public"}, res.Record.Payload["access"])
	assert.Empty(t, res.Warnings)
}

func TestMapAccessRights(t *testing.T) {
	tests := []struct {
		right string
		want  string
	}{
		{"open", "public"},
		{"embargoed", "restricted"},
		{"restricted", "restricted"},
		{"closed", "restricted"},
		{"OPEN", "public"},
	}
	m := newMapper(t, Options{})
	for _, tt := range tests {
		t.Run(tt.right, func(t *testing.T) {
			res, err := m.Map(withMetadata(t, "access_right", tt.right))
			require.NoError(t, err)
			access := res.Record.Payload["access"].(map[string]any)
			assert.Equal(t, tt.want, access["files"])
			assert.Equal(t, "public", access["record"])
		})
	}
}

func TestMapResourceTypeForms(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"type only", map[string]any{"type": "dataset"}, "dataset"},
		{"type and subtype", map[string]any{"type": "image", "subtype": "figure"}, "image-figure"},
		{"id form", map[string]any{"id": "publication-article"}, "publication-article"},
		{"bare string", "software", "software"},
	}
	m := newMapper(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Map(withMetadata(t, "resource_type", tt.value))
			require.NoError(t, err)
			md := res.Record.Payload["metadata"].(map[string]any)
			assert.Equal(t, map[string]any{"id": tt.want}, md["resource_type"])
		})
	}
}

func TestMapLicenseForms(t *testing.T) {
	m := newMapper(t, Options{})
	for _, v := range []any{"cc-by", map[string]any{"id": "CC-BY-4.0"}, "cc-by-4.0"} {
		res, err := m.Map(withMetadata(t, "license", v))
		require.NoError(t, err)
		md := res.Record.Payload["metadata"].(map[string]any)
		assert.Equal(t, []any{map[string]any{"id": "cc-by-4.0"}}, md["rights"])
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in      string
		family  string
		given   string
		wantErr bool
	}{
		{"Doe, John", "Doe", "John", false},
		{"Smith,", "Smith", "", false},
		{"John Doe", "Doe", "John", false},
		{"Cher", "Cher", "", false},
		{"van der Berg", "Berg", "van der", false},
		{"  Lovelace ,  Ada  ", "Lovelace", "Ada", false},
		{"", "", "", true},
		{", Anonymous", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			family, given, err := splitName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.family, family)
			assert.Equal(t, tt.given, given)
		})
	}
}

func TestMapCreatorWithoutGivenName(t *testing.T) {
	res, err := newMapper(t, Options{}).Map(withMetadata(t, "creators", []any{map[string]any{"name": "Cher"}}))
	require.NoError(t, err)
	creators := res.Record.Payload["metadata"].(map[string]any)["creators"].([]any)
	person := creators[0].(map[string]any)["person_or_org"].(map[string]any)
	assert.NotContains(t, person, "given_name")
	assert.Equal(t, "Cher", person["family_name"])
}

func TestNewWithRulesRejectsUnknownTransform(t *testing.T) {
	vocab, err := DefaultVocabulary()
	require.NoError(t, err)

	_, err = NewWithRules(Options{}, []Rule{{Target: "metadata.title", Source: "metadata.title", Transform: "shout"}}, vocab)
	assert.ErrorContains(t, err, "shout")

	_, err = NewWithRules(Options{}, []Rule{{Source: "metadata.title"}}, vocab)
	assert.Error(t, err)
}

func TestDefaultRules(t *testing.T) {
	targets := func(rules []Rule) []string {
		var out []string
		for _, r := range rules {
			out = append(out, r.Target)
		}
		return out
	}
	assert.NotContains(t, targets(DefaultRules(Options{})), "pids.doi")
	assert.Contains(t, targets(DefaultRules(Options{IncludePIDs: true})), "pids.doi")

	for _, r := range DefaultRules(Options{IncludePIDs: true}) {
		if r.Transform != "" {
			assert.Contains(t, builtinTransforms(), r.Transform, "rule %s", r.Target)
		}
	}
}

func TestDigest(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", "y"}}
	b := map[string]any{"a": []any{"x", "y"}, "b": 1}
	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	c := map[string]any{"a": []any{"y", "x"}, "b": 1}
	dc, err := Digest(c)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc, "list order is significant")
}

func TestCanonicalEscaping(t *testing.T) {
	out, err := Canonical(map[string]any{"t": "a<b & c"})
	require.NoError(t, err)
	assert.Equal(t, `{"t":"a<b & c"}`, string(out))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
