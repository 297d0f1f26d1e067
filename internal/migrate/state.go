// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package migrate

import (
	"slices"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// State is a point in a record's workflow.
type State string

const (
	StateFetched       State = "fetched"
	StateMapped        State = "mapped"
	StateDraftCreated  State = "draft_created"
	StateFilesUploaded State = "files_uploaded"
	StateSubmitted     State = "submitted"
	StateApproved      State = "approved"
	StatePublished     State = "published"
)

// order lists states from first to last.
var order = []State{
	StateFetched, StateMapped, StateDraftCreated, StateFilesUploaded,
	StateSubmitted, StateApproved, StatePublished,
}

// transitions is the allowed-transition table. Files are optional, so a
// draft may go straight to submission.
var transitions = map[State][]State{
	StateFetched:       {StateMapped},
	StateMapped:        {StateDraftCreated},
	StateDraftCreated:  {StateFilesUploaded, StateSubmitted},
	StateFilesUploaded: {StateSubmitted},
	StateSubmitted:     {StateApproved},
	StateApproved:      {StatePublished},
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return slices.Contains(order, s)
}

// Reaches reports whether s is target or a later state.
func (s State) Reaches(target State) bool {
	i, j := slices.Index(order, s), slices.Index(order, target)
	return i >= 0 && j >= 0 && i >= j
}

// TerminalState maps a configured terminal status to the workflow state
// that completes it.
func TerminalState(until types.Status) State {
	switch until {
	case types.StatusCreated:
		return StateDraftCreated
	case types.StatusSubmitted:
		return StateSubmitted
	case types.StatusPublished:
		return StatePublished
	}
	return StateApproved
}

// completes reports whether a record recorded at s needs no further work
// to reach target. A draft with files is only complete once they are
// uploaded.
func (s State) completes(target State, hasFiles bool) bool {
	if target == StateDraftCreated && hasFiles {
		target = StateFilesUploaded
	}
	return s.Reaches(target)
}

// statusFor is the outcome status of a record that stopped cleanly at s.
func statusFor(s State) types.Status {
	switch s {
	case StateSubmitted:
		return types.StatusSubmitted
	case StateApproved:
		return types.StatusApproved
	case StatePublished:
		return types.StatusPublished
	}
	return types.StatusCreated
}

// The types below carry a record through the workflow. Each is built only
// from its predecessor, so steps cannot run out of order.

type fetched struct {
	rec types.SourceRecord
}

type mapped struct {
	fetched
	dest     types.DestinationRecord
	payload  []byte
	digest   string
	warnings []string
}

type draft struct {
	mapped
	id string
}

type filed struct {
	draft
}

type submitted struct {
	filed
	requestID string
}

type approved struct {
	submitted
}

type published struct {
	approved
}
