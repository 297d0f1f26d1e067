// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// Status is the final status of one record in a run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusPublished Status = "published"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every status in report order.
var AllStatuses = []Status{
	StatusCreated, StatusSubmitted, StatusApproved, StatusPublished, StatusSkipped, StatusFailed,
}

// IsWorkflowState reports whether s can be used as a terminal workflow state.
func (s Status) IsWorkflowState() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusApproved, StatusPublished:
		return true
	}
	return false
}

// FailureKind classifies the error behind a failed outcome.
type FailureKind string

const (
	FailureMapping     FailureKind = "mapping"
	FailureSource      FailureKind = "source"
	FailureDestination FailureKind = "destination"
	FailureFile        FailureKind = "file"
	FailureLedger      FailureKind = "ledger"
)

// Failure carries the detail of a failed outcome. Body holds the
// destination's error response verbatim.
type Failure struct {
	Kind       FailureKind `json:"kind" yaml:"kind"`
	Message    string      `json:"message" yaml:"message"`
	Field      string      `json:"field,omitempty" yaml:"field,omitempty"`
	StatusCode int         `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Body       string      `json:"body,omitempty" yaml:"body,omitempty"`
}

// MigrationOutcome is the result of driving one source record through the
// workflow.
type MigrationOutcome struct {
	SourceID string `json:"source_id" yaml:"source_id"`
	Status   Status `json:"status" yaml:"status"`

	// State is the furthest workflow state the record reached.
	State string `json:"state" yaml:"state"`

	DestinationID string `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`
	RequestID     string `json:"request_id,omitempty" yaml:"request_id,omitempty"`

	// FailedStep names the step that failed, e.g. "create" or "approve".
	FailedStep string   `json:"failed_step,omitempty" yaml:"failed_step,omitempty"`
	Failure    *Failure `json:"failure,omitempty" yaml:"failure,omitempty"`

	// Reason explains a skipped outcome.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// PayloadDigest is the SHA-256 of the canonical mapped payload.
	PayloadDigest string          `json:"payload_digest,omitempty" yaml:"payload_digest,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty" yaml:"-"`
	Warnings      []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// RunSummary aggregates the outcomes of one run. Only the run controller
// writes to it.
type RunSummary struct {
	Query       string             `json:"query,omitempty"`
	RecordIDs   []string           `json:"record_ids,omitempty"`
	Start       int                `json:"start"`
	Limit       int                `json:"limit"`
	DryRun      bool               `json:"dry_run"`
	Until       Status             `json:"until"`
	SourceTotal int                `json:"source_total"`
	Counts      map[Status]int     `json:"counts"`
	Outcomes    []MigrationOutcome `json:"outcomes"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`

	// Aborted is set when the run ended before the record stream did.
	Aborted string `json:"aborted,omitempty"`
}

// NewRunSummary returns a summary with every status count present.
func NewRunSummary() *RunSummary {
	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	return &RunSummary{Counts: counts, Outcomes: []MigrationOutcome{}}
}

// Add appends an outcome and bumps its status count.
func (s *RunSummary) Add(o MigrationOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Counts[o.Status]++
}

// Total returns the number of records reported.
func (s *RunSummary) Total() int {
	return len(s.Outcomes)
}

// HasFailures reports whether any record failed or the run aborted.
func (s *RunSummary) HasFailures() bool {
	return s.Counts[StatusFailed] > 0 || s.Aborted != ""
}
