// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transfer stages record files on local disk between the source
// download and the destination upload. Files land under
// <dir>/<record id>/ via a temp file and rename, and are checked against
// the source checksum before they are handed on.
package transfer

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// Opener streams a source file.
type Opener interface {
	OpenFile(ctx context.Context, f types.FileDescriptor) (io.ReadCloser, error)
}

// ChecksumError reports staged content that does not match the source.
type ChecksumError struct {
	Key  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: want %s, got %s", e.Key, e.Want, e.Got)
}

// Stager downloads files into a staging directory.
type Stager struct {
	Dir    string
	Source Opener
	Logger *zap.Logger
}

// NewStager returns a Stager writing under dir.
func NewStager(dir string, source Opener, logger *zap.Logger) *Stager {
	return &Stager{Dir: dir, Source: source, Logger: logging.OrNop(logger)}
}

// Stage downloads f for recordID and returns the local path. A file
// already staged with a matching checksum is reused.
func (s *Stager) Stage(ctx context.Context, recordID string, f types.FileDescriptor) (string, error) {
	dir := s.recordDir(recordID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory %s: %w", dir, err)
	}
	dest := filepath.Join(dir, stagedName(f.Key))

	if _, err := os.Stat(dest); err == nil {
		if verifyErr := verifyFile(dest, f); verifyErr == nil {
			logging.OrNop(s.Logger).Debug("reusing staged file", zap.String("key", f.Key))
			return dest, nil
		}
		os.Remove(dest)
	}

	body, err := s.Source.OpenFile(ctx, f)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".stage-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	h, algo, want, err := newHash(f.Checksum)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("file %s: %w", f.Key, err)
	}

	var w io.Writer = tmp
	if h != nil {
		w = io.MultiWriter(tmp, h)
	}
	n, copyErr := io.Copy(w, body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing %s: %w", f.Key, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	if f.Size > 0 && n != f.Size {
		os.Remove(tmpPath)
		return "", fmt.Errorf("file %s: got %d bytes, want %d", f.Key, n, f.Size)
	}
	if h != nil {
		if got := hex.EncodeToString(h.Sum(nil)); got != want {
			os.Remove(tmpPath)
			return "", &ChecksumError{Key: f.Key, Want: f.Checksum, Got: algo + ":" + got}
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return dest, nil
}

// Cleanup removes everything staged for recordID.
func (s *Stager) Cleanup(recordID string) error {
	return os.RemoveAll(s.recordDir(recordID))
}

func (s *Stager) recordDir(recordID string) string {
	return filepath.Join(s.Dir, url.PathEscape(recordID))
}

func stagedName(key string) string {
	name := url.PathEscape(key)
	if name == "." || name == ".." {
		name = "_" + name
	}
	return name
}

// newHash parses "<algorithm>:<hex>". An empty checksum disables
// verification.
func newHash(checksum string) (hash.Hash, string, string, error) {
	if checksum == "" {
		return nil, "", "", nil
	}
	algo, sum, ok := strings.Cut(checksum, ":")
	if !ok {
		algo, sum = "md5", checksum
	}
	algo = strings.ToLower(algo)
	sum = strings.ToLower(sum)
	switch algo {
	case "md5":
		return md5.New(), algo, sum, nil
	case "sha1":
		return sha1.New(), algo, sum, nil
	case "sha256":
		return sha256.New(), algo, sum, nil
	}
	return nil, "", "", fmt.Errorf("unsupported checksum algorithm %q", algo)
}

func verifyFile(path string, f types.FileDescriptor) error {
	h, _, want, err := newHash(f.Checksum)
	if err != nil || h == nil {
		return fmt.Errorf("no checksum to verify")
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(h, file); err != nil {
		return err
	}
	if hex.EncodeToString(h.Sum(nil)) != want {
		return fmt.Errorf("checksum mismatch")
	}
	return nil
}
