// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mapper translates Zenodo community records into InvenioRDM draft
// payloads. The translation is driven by a rule table (destination path ->
// source path + named transform) and fixed vocabulary tables. Mapping is
// pure: no network, no clock, and the same input always yields the same
// canonical bytes.
package mapper

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// MappingError reports a record that cannot be translated. It is always
// fatal to that record and never retried.
type MappingError struct {
	RecordID string
	// Field is the destination field path, e.g. "metadata.resource_type".
	Field string
	// Term is the unrecognized vocabulary term, when that is the cause.
	Term   string
	Reason string
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("failed to map record %s", e.RecordID)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field: %s)", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Options toggles optional parts of the destination record.
type Options struct {
	// IncludeFiles keeps file descriptors and enables files on the draft.
	IncludeFiles bool
	// IncludePIDs carries the source DOI as an external pid.
	IncludePIDs bool
}

// Result is a mapped record plus non-fatal notes, e.g. dropped related
// identifiers.
type Result struct {
	Record   types.DestinationRecord
	Warnings []string
}

// Mapper applies a rule table to source records.
type Mapper struct {
	opts       Options
	rules      []Rule
	transforms map[string]Transform
	vocab      *Vocabulary
	schema     *jsonschema.Schema
}

// New returns a Mapper using the default rules, the embedded vocabulary
// and the embedded draft schema.
func New(opts Options) (*Mapper, error) {
	vocab, err := DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	return NewWithRules(opts, DefaultRules(opts), vocab)
}

// NewWithRules returns a Mapper for a custom rule table. Every rule's
// transform must be registered.
func NewWithRules(opts Options, rules []Rule, vocab *Vocabulary) (*Mapper, error) {
	transforms := builtinTransforms()
	for _, r := range rules {
		if r.Target == "" {
			return nil, fmt.Errorf("rule with empty target")
		}
		if r.Transform != "" {
			if _, ok := transforms[r.Transform]; !ok {
				return nil, fmt.Errorf("rule %s: unknown transform %q", r.Target, r.Transform)
			}
		}
	}

	schema, err := compileDraftSchema()
	if err != nil {
		return nil, err
	}

	return &Mapper{
		opts:       opts,
		rules:      rules,
		transforms: transforms,
		vocab:      vocab,
		schema:     schema,
	}, nil
}

// Rules returns a copy of the rule table.
func (m *Mapper) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// Map translates one source record. Failures are *MappingError.
func (m *Mapper) Map(rec types.SourceRecord) (Result, error) {
	env := &Env{
		RecordID: rec.ID,
		Document: rec.Document,
		Files:    rec.Files,
		Vocab:    m.vocab,
		Options:  m.opts,
	}

	payload := make(map[string]any)
	for _, r := range m.rules {
		var value any
		if r.Source != "" {
			value = deepCopy(lookup(rec.Document, r.Source))
		}
		if r.Transform != "" {
			out, err := m.transforms[r.Transform](env, value)
			if err != nil {
				return Result{}, asMappingError(rec.ID, r.Target, err)
			}
			value = out
		}

		if isEmpty(value) {
			switch {
			case r.Default != nil:
				value = r.Default
			case r.Required:
				return Result{}, &MappingError{
					RecordID: rec.ID,
					Field:    r.Target,
					Reason:   missingReason(r),
				}
			default:
				continue
			}
		}
		setPath(payload, r.Target, value)
	}

	if err := m.validate(rec.ID, payload); err != nil {
		return Result{}, err
	}

	out := types.DestinationRecord{SourceID: rec.ID, Payload: payload}
	if m.opts.IncludeFiles && len(rec.Files) > 0 {
		out.Files = append([]types.FileDescriptor(nil), rec.Files...)
	}
	return Result{Record: out, Warnings: env.warnings}, nil
}

func (m *Mapper) validate(recordID string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &MappingError{RecordID: recordID, Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &MappingError{RecordID: recordID, Reason: err.Error()}
	}

	err = m.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &MappingError{RecordID: recordID, Reason: err.Error()}
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &MappingError{
		RecordID: recordID,
		Field:    pointerToPath(ve.InstanceLocation),
		Reason:   "schema: " + ve.Message,
	}
}

// Canonical returns the RFC 8785 canonical JSON of a payload. Equal
// payloads always produce identical bytes.
func Canonical(payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing payload: %w", err)
	}
	return out, nil
}

// Digest returns the hex SHA-256 of the canonical payload.
func Digest(payload map[string]any) (string, error) {
	b, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func asMappingError(recordID, field string, err error) *MappingError {
	var me *MappingError
	if errors.As(err, &me) {
		out := *me
		out.RecordID = recordID
		if out.Field == "" {
			out.Field = field
		}
		return &out
	}
	return &MappingError{RecordID: recordID, Field: field, Reason: err.Error()}
}

func missingReason(r Rule) string {
	if r.Source == "" {
		return "required field has no value"
	}
	return fmt.Sprintf("required field has no value (source: %s)", r.Source)
}

// pointerToPath turns "/metadata/creators/0/person_or_org" into
// "metadata.creators.0.person_or_org".
func pointerToPath(ptr string) string {
	return strings.ReplaceAll(strings.TrimPrefix(ptr, "/"), "/", ".")
}
