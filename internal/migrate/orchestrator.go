// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package migrate drives Zenodo records into an InvenioRDM community. The
// Orchestrator walks one record through map, create, files, submit,
// approve and publish; the Runner feeds it a record stream and collects a
// RunSummary.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/harvest"
	"github.com/pdiddy/invenio-migrator/internal/httputil"
	"github.com/pdiddy/invenio-migrator/internal/invenio"
	"github.com/pdiddy/invenio-migrator/internal/ledger"
	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/internal/mapper"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// Step names reported in MigrationOutcome.FailedStep.
const (
	StepFetch       = "fetch"
	StepMap         = "map"
	StepLedger      = "ledger"
	StepCreate      = "create"
	StepUploadFiles = "upload_files"
	StepSubmit      = "submit"
	StepApprove     = "approve"
	StepPublish     = "publish"
)

// Mapper translates source records into destination payloads.
type Mapper interface {
	Map(rec types.SourceRecord) (mapper.Result, error)
}

// Destination is the part of the InvenioRDM client the workflow calls.
type Destination interface {
	CreateDraft(ctx context.Context, payload []byte) (invenio.Result, error)
	UpdateDraft(ctx context.Context, id string, payload []byte) (invenio.Result, error)
	UploadFile(ctx context.Context, id string, f types.FileDescriptor, content io.Reader) (invenio.Result, error)
	SubmitToCommunity(ctx context.Context, id, communityID, message string) (invenio.Result, error)
	Approve(ctx context.Context, requestID, message string) (invenio.Result, error)
	Publish(ctx context.Context, id string) (invenio.Result, error)
}

// Stager fetches record files to local disk.
type Stager interface {
	Stage(ctx context.Context, recordID string, f types.FileDescriptor) (string, error)
	Cleanup(recordID string) error
}

// Ledger records how far each record got.
type Ledger interface {
	Get(ctx context.Context, sourceID string) (ledger.Entry, bool, error)
	Put(ctx context.Context, e ledger.Entry) error
}

// Options controls the workflow.
type Options struct {
	DryRun bool
	// Until is the terminal status; empty means approved.
	Until         types.Status
	CommunityID   string
	ReviewMessage string
	AcceptMessage string
	// CreateRetries bounds retries of draft creation on transient errors.
	CreateRetries int
	// CleanupFiles removes staged files once a record's uploads succeed.
	CleanupFiles bool
	// IncludePayload copies the mapped payload into each outcome.
	IncludePayload bool
}

// Dependencies are the collaborators of an Orchestrator. Stager and Ledger
// are optional; a nil Logger logs nothing.
type Dependencies struct {
	Mapper      Mapper
	Destination Destination
	Stager      Stager
	Ledger      Ledger
	Logger      *zap.Logger
}

// Orchestrator drives single records through the workflow.
type Orchestrator struct {
	opts   Options
	target State
	mapper Mapper
	dest   Destination
	stager Stager
	ledger Ledger
	logger *zap.Logger
}

// NewOrchestrator validates deps against opts.
func NewOrchestrator(opts Options, deps Dependencies) (*Orchestrator, error) {
	if deps.Mapper == nil {
		return nil, errors.New("orchestrator needs a mapper")
	}
	if !opts.DryRun && deps.Destination == nil {
		return nil, errors.New("orchestrator needs a destination client unless dry-running")
	}
	if opts.Until == "" {
		opts.Until = types.StatusApproved
	}
	if !opts.Until.IsWorkflowState() {
		return nil, fmt.Errorf("unsupported terminal state %q", opts.Until)
	}
	return &Orchestrator{
		opts:   opts,
		target: TerminalState(opts.Until),
		mapper: deps.Mapper,
		dest:   deps.Destination,
		stager: deps.Stager,
		ledger: deps.Ledger,
		logger: logging.OrNop(deps.Logger),
	}, nil
}

// Process drives rec as far as the terminal state and reports where it
// ended. It never returns an error: every failure becomes a failed
// outcome. Steps run to completion even if ctx is cancelled.
func (o *Orchestrator) Process(ctx context.Context, rec types.SourceRecord) types.MigrationOutcome {
	r := &recordRun{
		Orchestrator: o,
		out:          types.MigrationOutcome{SourceID: rec.ID, State: string(StateFetched)},
		log:          o.logger.With(zap.String(logging.FieldSourceID, rec.ID)),
	}
	r.run(context.WithoutCancel(ctx), fetched{rec: rec})
	return r.out
}

// FetchFailure is the outcome for a record the source could not deliver.
func FetchFailure(sourceID string, err error) types.MigrationOutcome {
	return types.MigrationOutcome{
		SourceID:   sourceID,
		Status:     types.StatusFailed,
		FailedStep: StepFetch,
		Failure:    describe(StepFetch, err),
	}
}

// recordRun is the mutable state of one Process call.
type recordRun struct {
	*Orchestrator
	out types.MigrationOutcome
	log *zap.Logger

	// entry and resumed come from the ledger; resumed is empty for a
	// record seen for the first time.
	entry   ledger.Entry
	resumed State
}

func (r *recordRun) run(ctx context.Context, f fetched) {
	m, err := r.mapRecord(f)
	if err != nil {
		r.fail(StepMap, err)
		return
	}

	if r.opts.DryRun {
		r.log.Info("dry run: record mapped", zap.String("payload_digest", m.digest))
		r.log.Debug("mapped payload", zap.ByteString("payload", m.payload))
		r.skip("dry run")
		return
	}

	if err := r.loadLedger(ctx); err != nil {
		r.fail(StepLedger, err)
		return
	}
	if r.resumed.completes(r.target, len(m.dest.Files) > 0) {
		r.out.State = string(r.resumed)
		r.out.DestinationID = r.entry.DestinationID
		r.out.RequestID = r.entry.RequestID
		r.skip("already migrated")
		return
	}

	d, err := r.createDraft(ctx, m)
	if err != nil {
		r.fail(StepCreate, err)
		return
	}
	fd, err := r.uploadFiles(ctx, d)
	if err != nil {
		r.fail(StepUploadFiles, err)
		return
	}
	if r.target == StateDraftCreated {
		r.finish()
		return
	}

	s, err := r.submit(ctx, fd)
	if err != nil {
		r.fail(StepSubmit, err)
		return
	}
	if r.target == StateSubmitted {
		r.finish()
		return
	}

	a, err := r.approve(ctx, s)
	if err != nil {
		r.fail(StepApprove, err)
		return
	}
	if r.target == StateApproved {
		r.finish()
		return
	}

	if _, err := r.publish(ctx, a); err != nil {
		r.fail(StepPublish, err)
		return
	}
	r.finish()
}

func (r *recordRun) mapRecord(f fetched) (mapped, error) {
	res, err := r.mapper.Map(f.rec)
	if err != nil {
		return mapped{}, err
	}
	payload, err := mapper.Canonical(res.Record.Payload)
	if err != nil {
		return mapped{}, err
	}
	digest, err := mapper.Digest(res.Record.Payload)
	if err != nil {
		return mapped{}, err
	}

	for _, w := range res.Warnings {
		r.log.Warn("mapping warning", zap.String("detail", w))
	}
	r.out.PayloadDigest = digest
	r.out.Warnings = res.Warnings
	if r.opts.IncludePayload {
		r.out.Payload = json.RawMessage(payload)
	}
	r.advance(context.Background(), StateMapped)

	return mapped{
		fetched:  f,
		dest:     res.Record,
		payload:  payload,
		digest:   digest,
		warnings: res.Warnings,
	}, nil
}

func (r *recordRun) loadLedger(ctx context.Context) error {
	if r.ledger == nil {
		return nil
	}
	e, ok, err := r.ledger.Get(ctx, r.out.SourceID)
	if err != nil || !ok {
		return err
	}
	st := State(e.State)
	if !st.Valid() || e.DestinationID == "" {
		r.log.Warn("ignoring unusable ledger entry", zap.String(logging.FieldState, e.State))
		return nil
	}
	r.entry = e
	r.resumed = st
	r.log.Info("resuming from ledger",
		zap.String(logging.FieldState, e.State),
		zap.String(logging.FieldDestinationID, e.DestinationID))
	return nil
}

func (r *recordRun) createDraft(ctx context.Context, m mapped) (draft, error) {
	if r.resumed.Reaches(StateDraftCreated) {
		d, ok, err := r.resumeDraft(ctx, m)
		if ok || err != nil {
			return d, err
		}
	}

	var res invenio.Result
	var err error
	for attempt := 0; ; attempt++ {
		res, err = r.dest.CreateDraft(ctx, m.payload)
		if err == nil || ctx.Err() != nil || !retryable(err) || attempt >= r.opts.CreateRetries {
			break
		}
		wait := httputil.Backoff(attempt)
		r.log.Warn("draft creation failed; retrying",
			zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		if err := httputil.Wait(ctx, wait); err != nil {
			return draft{}, err
		}
	}
	if err != nil {
		return draft{}, err
	}

	r.out.DestinationID = res.ID
	r.log = r.log.With(zap.String(logging.FieldDestinationID, res.ID))
	r.advance(ctx, StateDraftCreated)
	return draft{mapped: m, id: res.ID}, nil
}

// resumeDraft reuses the recorded draft. While the draft is still editable
// its metadata is refreshed. ok is false when the recorded draft no longer
// exists and a new one must be created.
func (r *recordRun) resumeDraft(ctx context.Context, m mapped) (d draft, ok bool, err error) {
	id := r.entry.DestinationID
	if !r.resumed.Reaches(StateSubmitted) {
		if _, err := r.dest.UpdateDraft(ctx, id, m.payload); err != nil {
			var ie *invenio.Error
			if errors.As(err, &ie) && (ie.StatusCode == http.StatusNotFound || ie.StatusCode == http.StatusGone) {
				r.log.Warn("recorded draft no longer exists; creating a new one",
					zap.String(logging.FieldDestinationID, id))
				r.entry = ledger.Entry{}
				r.resumed = ""
				return draft{}, false, nil
			}
			return draft{}, false, err
		}
	}
	r.out.DestinationID = id
	r.log = r.log.With(zap.String(logging.FieldDestinationID, id))
	r.restore(StateDraftCreated)
	return draft{mapped: m, id: id}, true, nil
}

func (r *recordRun) uploadFiles(ctx context.Context, d draft) (filed, error) {
	files := d.dest.Files
	if len(files) == 0 {
		return filed{draft: d}, nil
	}
	if r.resumed.Reaches(StateFilesUploaded) {
		r.restore(StateFilesUploaded)
		return filed{draft: d}, nil
	}
	if r.stager == nil {
		return filed{}, errors.New("record has files but no staging directory is configured")
	}

	for _, f := range files {
		if err := r.uploadFile(ctx, d, f); err != nil {
			return filed{}, err
		}
	}
	if r.opts.CleanupFiles {
		if err := r.stager.Cleanup(d.rec.ID); err != nil {
			r.log.Warn("could not remove staged files", zap.Error(err))
		}
	}
	r.advance(ctx, StateFilesUploaded)
	return filed{draft: d}, nil
}

func (r *recordRun) uploadFile(ctx context.Context, d draft, f types.FileDescriptor) error {
	path, err := r.stager.Stage(ctx, d.rec.ID, f)
	if err != nil {
		return fmt.Errorf("staging %s: %w", f.Key, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening staged %s: %w", f.Key, err)
	}
	defer file.Close()

	res, err := r.dest.UploadFile(ctx, d.id, f, file)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", f.Key, err)
	}
	r.log.Debug("file uploaded", zap.String("key", f.Key), zap.String("checksum", res.Checksum))
	return nil
}

func (r *recordRun) submit(ctx context.Context, f filed) (submitted, error) {
	if r.resumed.Reaches(StateSubmitted) && r.entry.RequestID != "" {
		r.out.RequestID = r.entry.RequestID
		r.restore(StateSubmitted)
		return submitted{filed: f, requestID: r.entry.RequestID}, nil
	}

	res, err := r.dest.SubmitToCommunity(ctx, f.id, r.opts.CommunityID, r.opts.ReviewMessage)
	if err != nil {
		return submitted{}, err
	}
	if res.Noop {
		r.log.Info("review already submitted", zap.String("request_id", res.RequestID))
	}
	r.out.RequestID = res.RequestID
	r.advance(ctx, StateSubmitted)
	return submitted{filed: f, requestID: res.RequestID}, nil
}

func (r *recordRun) approve(ctx context.Context, s submitted) (approved, error) {
	if r.resumed.Reaches(StateApproved) {
		r.restore(StateApproved)
		return approved{submitted: s}, nil
	}

	res, err := r.dest.Approve(ctx, s.requestID, r.opts.AcceptMessage)
	if err != nil {
		return approved{}, err
	}
	if res.Noop {
		r.log.Info("review already accepted", zap.String("request_id", s.requestID))
	}
	r.advance(ctx, StateApproved)
	return approved{submitted: s}, nil
}

func (r *recordRun) publish(ctx context.Context, a approved) (published, error) {
	res, err := r.dest.Publish(ctx, a.id)
	if err != nil {
		return published{}, err
	}
	if res.Noop {
		r.log.Info("record already published")
	}
	r.advance(ctx, StatePublished)
	return published{approved: a}, nil
}

// advance moves the outcome to the next state and records it in the
// ledger once a destination record exists.
func (r *recordRun) advance(ctx context.Context, to State) {
	from := State(r.out.State)
	if !from.CanTransition(to) {
		r.log.DPanic("illegal state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	r.out.State = string(to)
	r.log.Debug("state changed", zap.String(logging.FieldState, string(to)))
	r.record(ctx)
}

// restore moves to a state recorded by an earlier run without repeating
// its step.
func (r *recordRun) restore(to State) {
	r.out.State = string(to)
	r.log.Debug("state restored from ledger", zap.String(logging.FieldState, string(to)))
}

func (r *recordRun) record(ctx context.Context) {
	if r.ledger == nil || r.out.DestinationID == "" {
		return
	}
	err := r.ledger.Put(ctx, ledger.Entry{
		SourceID:      r.out.SourceID,
		DestinationID: r.out.DestinationID,
		RequestID:     r.out.RequestID,
		State:         r.out.State,
		PayloadDigest: r.out.PayloadDigest,
	})
	if err != nil {
		r.log.Warn("could not update ledger", zap.Error(err))
	}
}

func (r *recordRun) finish() {
	r.out.Status = statusFor(State(r.out.State))
	r.log.Info("record migrated",
		zap.String("status", string(r.out.Status)),
		zap.String(logging.FieldState, r.out.State))
}

func (r *recordRun) skip(reason string) {
	r.out.Status = types.StatusSkipped
	r.out.Reason = reason
	r.log.Info("record skipped", zap.String("reason", reason))
}

func (r *recordRun) fail(step string, err error) {
	r.out.Status = types.StatusFailed
	r.out.FailedStep = step
	r.out.Failure = describe(step, err)
	r.log.Error("record failed",
		zap.String(logging.FieldStep, step),
		zap.String(logging.FieldState, r.out.State),
		zap.Error(err))
}

func retryable(err error) bool {
	var ie *invenio.Error
	return errors.As(err, &ie) && ie.Transient()
}

// describe turns an error into the failure detail of an outcome, keeping
// the destination response body untouched.
func describe(step string, err error) *types.Failure {
	f := &types.Failure{Kind: kindFor(step), Message: err.Error()}

	var me *mapper.MappingError
	if errors.As(err, &me) {
		f.Kind = types.FailureMapping
		f.Field = me.Field
	}
	var re *harvest.RecordError
	if errors.As(err, &re) {
		f.Kind = types.FailureSource
	}
	var ie *invenio.Error
	if errors.As(err, &ie) {
		f.StatusCode = ie.StatusCode
		f.Body = ie.Body
	}
	return f
}

func kindFor(step string) types.FailureKind {
	switch step {
	case StepMap:
		return types.FailureMapping
	case StepFetch:
		return types.FailureSource
	case StepUploadFiles:
		return types.FailureFile
	case StepLedger:
		return types.FailureLedger
	}
	return types.FailureDestination
}
