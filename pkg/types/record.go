// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the migration pipeline:
// source and destination records, per-record outcomes, the run summary and
// the configuration handed to the pipeline.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FileDescriptor describes one file attached to a record.
type FileDescriptor struct {
	// Key is the filename, unique within the record.
	Key string `json:"key" yaml:"key"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Checksum is "<algorithm>:<hex>", e.g. "md5:7bf6bb...".
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`

	// DownloadURL is where the file content can be fetched from the source.
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
}

// SourceRecord is a record document as returned by the source API. The
// document is kept opaque; the mapper reads it by path.
type SourceRecord struct {
	ID       string
	Document map[string]any
	Files    []FileDescriptor
}

// DestinationRecord is a mapped draft payload plus the files to upload.
type DestinationRecord struct {
	SourceID string
	Payload  map[string]any
	Files    []FileDescriptor
}

// ParseSourceRecord decodes a raw source record. Numbers are kept as
// json.Number so identifiers and sizes survive without float rounding.
func ParseSourceRecord(data []byte) (SourceRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return SourceRecord{}, fmt.Errorf("decoding source record: %w", err)
	}
	if doc == nil {
		return SourceRecord{}, fmt.Errorf("decoding source record: not an object")
	}

	id := scalarString(doc["id"])
	if id == "" {
		id = scalarString(doc["recid"])
	}
	if id == "" {
		return SourceRecord{}, fmt.Errorf("source record has no id")
	}

	files, err := parseFiles(doc["files"])
	if err != nil {
		return SourceRecord{}, fmt.Errorf("record %s: %w", id, err)
	}

	return SourceRecord{ID: id, Document: doc, Files: files}, nil
}

// parseFiles accepts both the list form and the {"entries": {...}} form.
func parseFiles(raw any) ([]FileDescriptor, error) {
	var entries []any
	fromMap := false
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		entries = v
	case map[string]any:
		m, _ := v["entries"].(map[string]any)
		for _, e := range m {
			entries = append(entries, e)
		}
		fromMap = true
	default:
		return nil, fmt.Errorf("unexpected files type %T", raw)
	}

	files := make([]FileDescriptor, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected file entry type %T", e)
		}
		f := FileDescriptor{
			Key:      scalarString(m["key"]),
			Checksum: scalarString(m["checksum"]),
		}
		if f.Key == "" {
			f.Key = scalarString(m["filename"])
		}
		if f.Key == "" {
			return nil, fmt.Errorf("file entry without key")
		}
		if n, ok := m["size"].(json.Number); ok {
			size, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("file %s: invalid size %q", f.Key, n)
			}
			f.Size = size
		}
		if links, ok := m["links"].(map[string]any); ok {
			for _, name := range []string{"content", "self", "download"} {
				if u := scalarString(links[name]); u != "" {
					f.DownloadURL = u
					break
				}
			}
		}
		files = append(files, f)
	}

	// The entries form is a map; keep the output stable.
	if fromMap {
		sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	}
	return files, nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return fmt.Sprintf("%.0f", s)
	}
	return ""
}
