// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// WriteSummary writes s as indented JSON to path. The file is replaced
// atomically so a reader never sees a partial report.
func WriteSummary(path string, s *types.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming summary: %w", err)
	}
	return nil
}

// PrintSummary writes the status counts and any failures as a table.
func PrintSummary(w io.Writer, s *types.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tRECORDS")
	for _, st := range types.AllStatuses {
		fmt.Fprintf(tw, "%s\t%d\n", st, s.Counts[st])
	}
	fmt.Fprintf(tw, "total\t%d\n", s.Total())
	tw.Flush()

	if s.Counts[types.StatusFailed] > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FAILED\tSTEP\tSTATE\tERROR")
		for _, o := range s.Outcomes {
			if o.Status != types.StatusFailed || o.Failure == nil {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.SourceID, o.FailedStep, o.State, o.Failure.Message)
		}
		tw.Flush()
	}

	if s.Aborted != "" {
		fmt.Fprintf(w, "\nrun aborted: %s\n", s.Aborted)
	}
}
