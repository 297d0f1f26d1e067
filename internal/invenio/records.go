// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package invenio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// Record states reported in Result.State.
const (
	StateDraft     = "draft"
	StateSubmitted = "submitted"
	StateAccepted  = "accepted"
	StatePublished = "published"
)

type recordResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateDraft creates a draft from a mapped payload.
func (c *Client) CreateDraft(ctx context.Context, payload []byte) (Result, error) {
	var resp recordResponse
	if _, err := c.call(ctx, "create draft", http.MethodPost, "/records", payload, &resp, http.StatusCreated, http.StatusOK); err != nil {
		return Result{}, err
	}
	if resp.ID == "" {
		return Result{}, &Error{Op: "create draft", Err: errors.New("response has no record id")}
	}
	c.Logger.Debug("draft created", zap.String("destination_id", resp.ID))
	return Result{ID: resp.ID, State: StateDraft}, nil
}

// UpdateDraft replaces the metadata of an existing draft.
func (c *Client) UpdateDraft(ctx context.Context, id string, payload []byte) (Result, error) {
	var resp recordResponse
	if _, err := c.call(ctx, "update draft", http.MethodPut, recordPath(id)+"/draft", payload, &resp, http.StatusOK); err != nil {
		return Result{}, err
	}
	return Result{ID: id, State: StateDraft}, nil
}

// FileEntry is a file registered on a draft.
type FileEntry struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Checksum string `json:"checksum"`
}

const fileCompleted = "completed"

// DraftFiles lists the files registered on a draft.
func (c *Client) DraftFiles(ctx context.Context, id string) ([]FileEntry, error) {
	var resp struct {
		Entries []FileEntry `json:"entries"`
	}
	if _, err := c.call(ctx, "list files", http.MethodGet, recordPath(id)+"/draft/files", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// DeleteFile removes a registered file from a draft.
func (c *Client) DeleteFile(ctx context.Context, id, key string) error {
	_, err := c.call(ctx, "delete file", http.MethodDelete, filePath(id, key), nil, nil, http.StatusNoContent, http.StatusOK)
	return err
}

// InitFiles registers file keys on a draft.
func (c *Client) InitFiles(ctx context.Context, id string, keys []string) error {
	entries := make([]map[string]string, len(keys))
	for i, k := range keys {
		entries[i] = map[string]string{"key": k}
	}
	_, err := c.call(ctx, "init files", http.MethodPost, recordPath(id)+"/draft/files", entries, nil, http.StatusCreated, http.StatusOK)
	return err
}

// UploadFileContent streams the bytes of one registered file.
func (c *Client) UploadFileContent(ctx context.Context, id, key string, content io.Reader) error {
	_, err := c.call(ctx, "upload file content", http.MethodPut, filePath(id, key)+"/content", content, nil, http.StatusOK, http.StatusCreated)
	return err
}

// CommitFile finalizes an uploaded file and returns the checksum the
// destination computed.
func (c *Client) CommitFile(ctx context.Context, id, key string) (Result, error) {
	var resp struct {
		Key      string `json:"key"`
		Checksum string `json:"checksum"`
	}
	if _, err := c.call(ctx, "commit file", http.MethodPost, filePath(id, key)+"/commit", nil, &resp, http.StatusOK, http.StatusCreated); err != nil {
		return Result{}, err
	}
	return Result{ID: id, Checksum: resp.Checksum}, nil
}

// UploadFile registers, uploads and commits one file, then checks the
// destination checksum against f.Checksum when both are known. A key that
// an earlier run already committed with the same checksum is reported as a
// no-op; a pending or mismatched one is deleted and uploaded again.
func (c *Client) UploadFile(ctx context.Context, id string, f types.FileDescriptor, content io.Reader) (Result, error) {
	existing, err := c.DraftFiles(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if i := slices.IndexFunc(existing, func(e FileEntry) bool { return e.Key == f.Key }); i >= 0 {
		e := existing[i]
		if e.Status == fileCompleted && (f.Checksum == "" || e.Checksum == f.Checksum) {
			c.Logger.Debug("file already uploaded", zap.String("key", f.Key))
			return Result{ID: id, Checksum: e.Checksum, Noop: true}, nil
		}
		c.Logger.Info("replacing incomplete file", zap.String("key", f.Key), zap.String("status", e.Status))
		if err := c.DeleteFile(ctx, id, f.Key); err != nil {
			return Result{}, err
		}
	}
	if err := c.InitFiles(ctx, id, []string{f.Key}); err != nil {
		return Result{}, err
	}
	if err := c.UploadFileContent(ctx, id, f.Key, content); err != nil {
		return Result{}, err
	}
	res, err := c.CommitFile(ctx, id, f.Key)
	if err != nil {
		return Result{}, err
	}
	if f.Checksum != "" && res.Checksum != "" && res.Checksum != f.Checksum {
		return res, &Error{
			Op:  "commit file",
			Err: fmt.Errorf("checksum mismatch for %s: source %s, destination %s", f.Key, f.Checksum, res.Checksum),
		}
	}
	return res, nil
}

// Publish publishes a draft. A record that is already published is left
// alone and reported as a no-op.
func (c *Client) Publish(ctx context.Context, id string) (Result, error) {
	var existing recordResponse
	status, err := c.call(ctx, "get record", http.MethodGet, recordPath(id), nil, &existing, http.StatusOK)
	switch {
	case err == nil:
		return Result{ID: id, State: StatePublished, Noop: true}, nil
	case status != http.StatusNotFound:
		return Result{}, err
	}

	var resp recordResponse
	if _, err := c.call(ctx, "publish", http.MethodPost, recordPath(id)+"/draft/actions/publish", nil, &resp, http.StatusAccepted, http.StatusOK); err != nil {
		return Result{}, err
	}
	return Result{ID: id, State: StatePublished}, nil
}

func recordPath(id string) string {
	return "/records/" + url.PathEscape(id)
}

func filePath(id, key string) string {
	return recordPath(id) + "/draft/files/" + url.PathEscape(key)
}
