// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/harvest"
	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// Source is a stream of records to migrate. Errors that wrap a
// *harvest.RecordError concern one record; any other error ends the run.
type Source interface {
	Records(ctx context.Context) iter.Seq2[types.SourceRecord, error]
	// Total is the size of the full result set, or a negative number when
	// unknown.
	Total() int
}

// Runner feeds a Source through an Orchestrator one record at a time.
type Runner struct {
	Orchestrator *Orchestrator
	// StopOnError ends the run after the first failed record.
	StopOnError bool
	// Progress receives one line per record when set.
	Progress io.Writer
	Logger   *zap.Logger

	now func() time.Time
}

// Run processes src and records every outcome in s. Cancellation of ctx
// is honoured between records; the record in flight is finished first.
func (r *Runner) Run(ctx context.Context, src Source, s *types.RunSummary) {
	log := logging.OrNop(r.Logger)
	now := r.now
	if now == nil {
		now = time.Now
	}

	s.StartedAt = now().UTC()
	defer func() {
		s.FinishedAt = now().UTC()
		s.SourceTotal = max(src.Total(), 0)
		log.Info("run finished",
			zap.Int("records", s.Total()),
			zap.Int("failed", s.Counts[types.StatusFailed]),
			zap.String("aborted", s.Aborted))
	}()

	for rec, err := range src.Records(ctx) {
		if ctx.Err() != nil {
			break
		}

		var out types.MigrationOutcome
		var re *harvest.RecordError
		switch {
		case err == nil:
			out = r.Orchestrator.Process(ctx, rec)
		case errors.As(err, &re):
			log.Warn("skipping unreadable record", zap.Error(err))
			out = FetchFailure(sourceIDOf(rec, re), err)
		default:
			if ctx.Err() == nil {
				s.Aborted = err.Error()
				log.Error("source failed; aborting run", zap.Error(err))
			}
			return
		}

		s.Add(out)
		r.progress(s.Total(), src.Total(), out)

		if r.StopOnError && out.Status == types.StatusFailed {
			s.Aborted = fmt.Sprintf("stopped after record %s failed", out.SourceID)
			return
		}
	}
	if ctx.Err() != nil {
		s.Aborted = "interrupted"
		log.Warn("run interrupted", zap.Int("records", s.Total()))
	}
}

func (r *Runner) progress(n, total int, o types.MigrationOutcome) {
	if r.Progress == nil {
		return
	}
	of := "?"
	if total >= 0 {
		of = fmt.Sprint(total)
	}
	line := fmt.Sprintf("[%d/%s] %s: %s", n, of, o.SourceID, o.Status)
	switch {
	case o.Failure != nil:
		line += fmt.Sprintf(" at %s (%s)", o.FailedStep, o.Failure.Message)
	case o.Reason != "":
		line += " (" + o.Reason + ")"
	case o.DestinationID != "":
		line += " -> " + o.DestinationID
	}
	fmt.Fprintln(r.Progress, line)
}

func sourceIDOf(rec types.SourceRecord, re *harvest.RecordError) string {
	switch {
	case rec.ID != "":
		return rec.ID
	case re.RecordID != "":
		return re.RecordID
	}
	return fmt.Sprintf("#%d", re.Position)
}
