// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest reads records from a Zenodo community. Search pages
// through the community's result set lazily; Lookup fetches named records;
// OpenFile streams file content. Transient failures are retried with
// backoff before surfacing as errors.
package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/httputil"
	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

const (
	defaultPageSize = 100
	maxErrorBody    = 2048
)

// ErrNotFound is wrapped by a RecordError when a looked-up record does not
// exist at the source.
var ErrNotFound = errors.New("record not found")

// HarvestError means the source could not deliver a page. It ends the
// stream.
type HarvestError struct {
	Page       int
	Attempts   int
	StatusCode int
	Err        error
}

func (e *HarvestError) Error() string {
	msg := fmt.Sprintf("harvesting page %d failed after %d attempt(s)", e.Page, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HarvestError) Unwrap() error { return e.Err }

// RecordError means a single record could not be read. The stream
// continues past it.
type RecordError struct {
	RecordID string
	// Position is the record's zero-based offset in the result set, or -1
	// for looked-up records.
	Position int
	Err      error
}

func (e *RecordError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("record at position %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("record %s: %v", e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Query selects the records to harvest.
type Query struct {
	Community   string
	Q           string
	Sort        string
	AllVersions bool
	// Start skips that many records of the ordered result set.
	Start int
	// Limit caps the number of records yielded; 0 means no cap.
	Limit int
}

// Client talks to the Zenodo REST API.
type Client struct {
	HTTP       *http.Client
	BaseURL    string
	PageSize   int
	MaxRetries int
	Logger     *zap.Logger
}

// NewClient returns a Client for cfg using httpClient for transport.
func NewClient(cfg types.SourceConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		HTTP:       httpClient,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		PageSize:   cfg.PageSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logging.OrNop(logger),
	}
}

func (c *Client) pageSize() int {
	if c.PageSize <= 0 {
		return defaultPageSize
	}
	return c.PageSize
}

// Harvest is one lazy pass over a query's result set.
type Harvest struct {
	client *Client
	query  Query
	total  int
}

// Search prepares a harvest. Nothing is fetched until Records is ranged
// over.
func (c *Client) Search(q Query) *Harvest {
	return &Harvest{client: c, query: q, total: -1}
}

// Total is the size of the full result set as reported by the source, or
// -1 before the first page has been fetched.
func (h *Harvest) Total() int { return h.total }

// Records yields records in source order, starting at Query.Start. A
// *RecordError is yielded for a record that cannot be parsed and the
// stream continues. A *HarvestError is yielded when a page cannot be
// fetched and the stream ends.
func (h *Harvest) Records(ctx context.Context) iter.Seq2[types.SourceRecord, error] {
	return func(yield func(types.SourceRecord, error) bool) {
		size := h.client.pageSize()
		start := max(h.query.Start, 0)
		page := start/size + 1
		skip := start % size
		position := start
		yielded := 0

		for {
			if ctx.Err() != nil {
				return
			}
			hits, total, err := h.client.fetchPage(ctx, h.query, page, size)
			if err != nil {
				yield(types.SourceRecord{}, err)
				return
			}
			if h.total < 0 {
				h.total = total
			}

			h.client.Logger.Debug("fetched page",
				zap.Int("page", page), zap.Int("hits", len(hits)), zap.Int("total", total))

			for i, raw := range hits {
				if i < skip {
					continue
				}
				if h.query.Limit > 0 && yielded >= h.query.Limit {
					return
				}
				rec, err := types.ParseSourceRecord(raw)
				if err != nil {
					err = &RecordError{Position: position, Err: err}
				}
				yielded++
				position++
				if !yield(rec, err) {
					return
				}
			}
			skip = 0

			if h.query.Limit > 0 && yielded >= h.query.Limit {
				return
			}
			if len(hits) < size || (total >= 0 && page*size >= total) {
				return
			}
			page++
		}
	}
}

// Count returns the size of the query's result set.
func (c *Client) Count(ctx context.Context, q Query) (int, error) {
	_, total, err := c.fetchPage(ctx, q, 1, 1)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (c *Client) fetchPage(ctx context.Context, q Query, page, size int) ([]json.RawMessage, int, error) {
	params := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
	if q.Community != "" {
		params.Set("communities", q.Community)
	}
	if q.Q != "" {
		params.Set("q", q.Q)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.AllVersions {
		params.Set("all_versions", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/records?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, &HarvestError{Page: page, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, attempts, err := httputil.Do(ctx, c.HTTP, req, c.MaxRetries)
	if err != nil {
		return nil, 0, &HarvestError{Page: page, Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, 0, &HarvestError{
			Page:       page,
			Attempts:   attempts,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("source returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, &HarvestError{Page: page, Attempts: attempts, Err: fmt.Errorf("parsing search response: %w", err)}
	}
	total, err := parseTotal(sr.Hits.Total)
	if err != nil {
		return nil, 0, &HarvestError{Page: page, Attempts: attempts, Err: err}
	}
	return sr.Hits.Hits, total, nil
}

// parseTotal accepts both `"total": 42` and `"total": {"value": 42}`.
// A missing total is reported as -1.
func parseTotal(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return -1, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("parsing hits.total: %w", err)
	}
	return obj.Value, nil
}

// Lookup yields the named records in the given order. Missing or
// unreadable records are yielded as *RecordError and do not stop the
// stream.
func (c *Client) Lookup(ctx context.Context, ids []string) iter.Seq2[types.SourceRecord, error] {
	return func(yield func(types.SourceRecord, error) bool) {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			rec, err := c.fetchRecord(ctx, id)
			if err != nil {
				rec = types.SourceRecord{ID: id}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// List is a fixed set of records fetched one by one.
type List struct {
	client *Client
	ids    []string
}

// ByID prepares a lookup of ids in the given order.
func (c *Client) ByID(ids []string) *List {
	return &List{client: c, ids: ids}
}

// Total is the number of requested ids.
func (l *List) Total() int { return len(l.ids) }

// Records yields the listed records; see Lookup.
func (l *List) Records(ctx context.Context) iter.Seq2[types.SourceRecord, error] {
	return l.client.Lookup(ctx, l.ids)
}

func (c *Client) fetchRecord(ctx context.Context, id string) (types.SourceRecord, error) {
	fail := func(err error) (types.SourceRecord, error) {
		return types.SourceRecord{}, &RecordError{RecordID: id, Position: -1, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/records/"+url.PathEscape(id), nil)
	if err != nil {
		return fail(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxRetries)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fail(ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fail(fmt.Errorf("source returned HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("reading record: %w", err))
	}
	rec, err := types.ParseSourceRecord(data)
	if err != nil {
		return fail(err)
	}
	return rec, nil
}

// OpenFile streams the content of a source file. The caller closes the
// returned reader.
func (c *Client) OpenFile(ctx context.Context, f types.FileDescriptor) (io.ReadCloser, error) {
	if f.DownloadURL == "" {
		return nil, fmt.Errorf("file %s has no download URL", f.Key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", f.Key, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: HTTP %d", f.Key, resp.StatusCode)
	}
	return resp.Body, nil
}

type searchResponse struct {
	Hits struct {
		Hits  []json.RawMessage `json:"hits"`
		Total json.RawMessage   `json:"total"`
	} `json:"hits"`
}
