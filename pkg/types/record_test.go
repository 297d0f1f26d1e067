// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceRecord(t *testing.T) {
	rec, err := ParseSourceRecord([]byte(`{
		"id": 10293847561,
		"metadata": {"title": "T"},
		"files": [
			{"key": "b.csv", "size": 12, "checksum": "md5:abc", "links": {"self": "https://zenodo.org/api/files/x/b.csv"}},
			{"filename": "a.txt", "size": 3}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "10293847561", rec.ID, "large ids keep every digit")
	require.Len(t, rec.Files, 2)
	assert.Equal(t, FileDescriptor{
		Key: "b.csv", Size: 12, Checksum: "md5:abc", DownloadURL: "https://zenodo.org/api/files/x/b.csv",
	}, rec.Files[0])
	assert.Equal(t, "a.txt", rec.Files[1].Key, "list order is kept")
	assert.Equal(t, "T", rec.Document["metadata"].(map[string]any)["title"])
}

func TestParseSourceRecordEntriesForm(t *testing.T) {
	rec, err := ParseSourceRecord([]byte(`{
		"recid": "77",
		"files": {"enabled": true, "entries": {
			"z.pdf": {"key": "z.pdf", "size": 1, "links": {"content": "https://x/z"}},
			"a.pdf": {"key": "a.pdf", "size": 2}
		}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "77", rec.ID)
	require.Len(t, rec.Files, 2)
	assert.Equal(t, "a.pdf", rec.Files[0].Key)
	assert.Equal(t, "https://x/z", rec.Files[1].DownloadURL)
}

func TestParseSourceRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"not an object", `null`},
		{"no id", `{"metadata": {}}`},
		{"file without key", `{"id": 1, "files": [{"size": 1}]}`},
		{"bad size", `{"id": 1, "files": [{"key": "a", "size": 1.5}]}`},
		{"files wrong type", `{"id": 1, "files": "a.csv"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSourceRecord([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestRunSummary(t *testing.T) {
	s := NewRunSummary()
	for _, st := range AllStatuses {
		assert.Contains(t, s.Counts, st)
	}
	assert.False(t, s.HasFailures())

	s.Add(MigrationOutcome{SourceID: "1", Status: StatusApproved})
	s.Add(MigrationOutcome{SourceID: "2", Status: StatusSkipped})
	assert.Equal(t, 2, s.Total())
	assert.False(t, s.HasFailures())

	s.Aborted = "interrupted"
	assert.True(t, s.HasFailures())

	s.Aborted = ""
	s.Add(MigrationOutcome{SourceID: "3", Status: StatusFailed})
	assert.True(t, s.HasFailures())
	assert.Equal(t, 1, s.Counts[StatusFailed])
}
