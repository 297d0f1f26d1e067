// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package invenio is a thin client for the InvenioRDM REST API: drafts,
// draft files, community review requests and publishing. Each call maps to
// one workflow step and returns a Result or an *Error carrying the
// response body verbatim. The client never retries; callers decide.
package invenio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/httputil"
	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

const maxBody = 1 << 20

// Result is the outcome of one adapter call. Noop is set when the
// destination was already in the requested state and nothing was changed.
type Result struct {
	ID        string
	RequestID string
	State     string
	Checksum  string
	Noop      bool
}

// Error is a failed destination call. Body holds the response body as
// received.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error

	network bool
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("invenio %s: HTTP %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
	case e.StatusCode != 0:
		return fmt.Sprintf("invenio %s: HTTP %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("invenio %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call could succeed: 429, 5xx
// or a transport failure.
func (e *Error) Transient() bool {
	if e.StatusCode != 0 {
		return httputil.Transient(e.StatusCode, nil)
	}
	return e.network && httputil.Transient(0, e.Err)
}

// Client talks to one InvenioRDM instance.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Logger  *zap.Logger
}

// NewClient returns a Client for cfg using httpClient for transport.
func NewClient(cfg types.DestinationConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		HTTP:    httpClient,
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Logger:  logging.OrNop(logger),
	}
}

// call performs one request. body may be nil, []byte (sent as is), an
// io.Reader (sent as octet-stream) or any JSON-encodable value. A status
// outside ok yields *Error. When out is non-nil the response is decoded
// into it.
func (c *Client) call(ctx context.Context, op, method, path string, body any, out any, ok ...int) (int, error) {
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case io.Reader:
		reader = b
		contentType = "application/octet-stream"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return 0, &Error{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, &Error{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.Logger.Debug("destination request", zap.String("op", op), zap.String("method", method), zap.String("path", path))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, &Error{Op: op, Err: err, network: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err), network: true}
	}
	if !slices.Contains(ok, resp.StatusCode) {
		return resp.StatusCode, &Error{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("decoding response: %w", err), Body: string(data)}
		}
	}
	return resp.StatusCode, nil
}

// Community describes a destination community.
type Community struct {
	ID    string
	Slug  string
	Title string
}

// Community fetches a community by UUID. It doubles as the connectivity
// and permission check.
func (c *Client) Community(ctx context.Context, id string) (Community, error) {
	var resp struct {
		ID       string `json:"id"`
		Slug     string `json:"slug"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	}
	if _, err := c.call(ctx, "get community", http.MethodGet, "/communities/"+id, nil, &resp, http.StatusOK); err != nil {
		return Community{}, err
	}
	return Community{ID: resp.ID, Slug: resp.Slug, Title: resp.Metadata.Title}, nil
}
