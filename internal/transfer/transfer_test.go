// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// stubOpener serves fixed content per key and counts opens.
type stubOpener struct {
	content map[string]string
	opens   int
	err     error
}

func (s *stubOpener) OpenFile(_ context.Context, f types.FileDescriptor) (io.ReadCloser, error) {
	s.opens++
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.content[f.Key])), nil
}

const md5OfA = "md5:0cc175b9c0f1b6a831c399e269772661"

func TestStage(t *testing.T) {
	tests := []struct {
		name    string
		file    types.FileDescriptor
		content string
		wantErr string
	}{
		{"md5 match", types.FileDescriptor{Key: "a.txt", Size: 1, Checksum: md5OfA}, "a", ""},
		{"bare md5", types.FileDescriptor{Key: "a.txt", Checksum: "0cc175b9c0f1b6a831c399e269772661"}, "a", ""},
		{
			"sha256 match",
			types.FileDescriptor{Key: "a.txt", Checksum: "sha256:ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"},
			"a", "",
		},
		{"no checksum", types.FileDescriptor{Key: "a.txt"}, "anything", ""},
		{"checksum mismatch", types.FileDescriptor{Key: "a.txt", Checksum: md5OfA}, "b", "checksum mismatch"},
		{"size mismatch", types.FileDescriptor{Key: "a.txt", Size: 5, Checksum: md5OfA}, "a", "got 1 bytes"},
		{"unknown algorithm", types.FileDescriptor{Key: "a.txt", Checksum: "crc32:abcd"}, "a", "unsupported checksum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewStager(dir, &stubOpener{content: map[string]string{"a.txt": tt.content}}, nil)

			path, err := s.Stage(context.Background(), "1234", tt.file)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				entries, _ := os.ReadDir(filepath.Join(dir, "1234"))
				assert.Empty(t, entries, "no partial files left behind")
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
			assert.Equal(t, filepath.Join(dir, "1234", "a.txt"), path)
		})
	}
}

func TestStage_ChecksumErrorType(t *testing.T) {
	s := NewStager(t.TempDir(), &stubOpener{content: map[string]string{"a.txt": "b"}}, nil)
	_, err := s.Stage(context.Background(), "1", types.FileDescriptor{Key: "a.txt", Checksum: md5OfA})
	var ce *ChecksumError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, md5OfA, ce.Want)
	assert.Equal(t, "md5:92eb5ffee6ae2fec3ad71c777531578f", ce.Got)
}

func TestStage_ReusesVerifiedFile(t *testing.T) {
	src := &stubOpener{content: map[string]string{"a.txt": "a"}}
	s := NewStager(t.TempDir(), src, nil)
	f := types.FileDescriptor{Key: "a.txt", Checksum: md5OfA}

	_, err := s.Stage(context.Background(), "1", f)
	require.NoError(t, err)
	_, err = s.Stage(context.Background(), "1", f)
	require.NoError(t, err)
	assert.Equal(t, 1, src.opens)
}

func TestStage_KeyWithSlash(t *testing.T) {
	dir := t.TempDir()
	s := NewStager(dir, &stubOpener{content: map[string]string{"../escape.txt": "x"}}, nil)

	path, err := s.Stage(context.Background(), "1", types.FileDescriptor{Key: "../escape.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1"), filepath.Dir(path), "key cannot leave the record directory")
}

func TestStage_SourceError(t *testing.T) {
	s := NewStager(t.TempDir(), &stubOpener{err: errors.New("HTTP 500")}, nil)
	_, err := s.Stage(context.Background(), "1", types.FileDescriptor{Key: "a.txt"})
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	s := NewStager(dir, &stubOpener{content: map[string]string{"a.txt": "a"}}, nil)
	_, err := s.Stage(context.Background(), "1", types.FileDescriptor{Key: "a.txt"})
	require.NoError(t, err)

	require.NoError(t, s.Cleanup("1"))
	_, err = os.Stat(filepath.Join(dir, "1"))
	assert.True(t, os.IsNotExist(err))
}
