package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/harvest"
	"github.com/pdiddy/invenio-migrator/internal/httputil"
	"github.com/pdiddy/invenio-migrator/internal/invenio"
	"github.com/pdiddy/invenio-migrator/internal/ledger"
	"github.com/pdiddy/invenio-migrator/internal/mapper"
	"github.com/pdiddy/invenio-migrator/internal/migrate"
	"github.com/pdiddy/invenio-migrator/internal/transfer"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate community records into InvenioRDM",
	Long: `Migrate harvests the configured Zenodo community (or the records named with
--records), maps each record and drives it through draft creation, file
upload, community submission and approval. Records are processed one at a
time in source order.

--start and --limit select the window [start, start+limit) of the ordered
result set, so a large community can be migrated in batches. --dry-run maps
records without touching the destination.

A JSON summary of every record's outcome is written to --output. The command
exits non-zero when any record failed or the run was cut short.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("query", "", "source search query (Zenodo query syntax)")
	migrateCmd.Flags().StringSlice("records", nil, "migrate only these source record ids")
	migrateCmd.Flags().Bool("dry-run", false, "map records without calling the destination")
	migrateCmd.Flags().Int("start", 0, "number of records of the result set to skip")
	migrateCmd.Flags().Int("limit", 0, "maximum number of records to process (0 for all)")
	migrateCmd.Flags().String("output", "migration-summary.json", "path of the JSON run summary")
	migrateCmd.Flags().Bool("include-files", false, "upload record files (default from migration.include_files)")
	migrateCmd.Flags().Bool("publish", false, "publish records after approval (same as --until published)")
	migrateCmd.Flags().String("until", "", "terminal state: created, submitted, approved or published")
	migrateCmd.Flags().Bool("include-payload", false, "include mapped payloads in the summary")
	migrateCmd.Flags().Bool("stop-on-error", false, "stop after the first failed record")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	records, _ := cmd.Flags().GetStringSlice("records")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	start, _ := cmd.Flags().GetInt("start")
	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")
	includePayload, _ := cmd.Flags().GetBool("include-payload")

	summary := types.NewRunSummary()
	summary.Query = query
	summary.RecordIDs = records
	summary.Start = start
	summary.Limit = limit
	summary.DryRun = dryRun

	// abort still leaves a summary behind for failures before the first
	// record.
	abort := func(err error) error {
		summary.Aborted = err.Error()
		if werr := migrate.WriteSummary(output, summary); werr != nil {
			logger.Error("could not write summary", zap.Error(werr))
		}
		return err
	}

	if start < 0 || limit < 0 {
		return abort(fmt.Errorf("--start and --limit must not be negative"))
	}
	if len(records) > 0 && (query != "" || start > 0 || limit > 0) {
		return abort(fmt.Errorf("--records cannot be combined with --query, --start or --limit"))
	}

	cfg, err := loadConfig()
	if err != nil {
		return abort(err)
	}
	if cmd.Flags().Changed("include-files") {
		cfg.Migration.IncludeFiles, _ = cmd.Flags().GetBool("include-files")
	}
	if cmd.Flags().Changed("stop-on-error") {
		cfg.Migration.StopOnError, _ = cmd.Flags().GetBool("stop-on-error")
	}
	if until, _ := cmd.Flags().GetString("until"); until != "" {
		cfg.Migration.Until = types.Status(until)
	}
	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		cfg.Migration.Until = types.StatusPublished
	}
	summary.Until = cfg.Migration.Until

	if err := cfg.Validate(dryRun); err != nil {
		return abort(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := harvest.NewClient(cfg.Source,
		httputil.NewClient(cfg.Source.HTTPConfig, cfg.Source.Token, false),
		logger.Named("harvest"))

	m, err := mapper.New(mapper.Options{
		IncludeFiles: cfg.Migration.IncludeFiles,
		IncludePIDs:  cfg.Migration.IncludePIDs,
	})
	if err != nil {
		return abort(err)
	}

	deps := migrate.Dependencies{Mapper: m, Logger: logger.Named("migrate")}
	if !dryRun {
		deps.Destination = invenio.NewClient(cfg.Destination,
			httputil.NewClient(cfg.Destination.HTTPConfig, cfg.Destination.Token, cfg.Destination.InsecureSkipVerify),
			logger.Named("invenio"))
		if cfg.Migration.IncludeFiles {
			deps.Stager = transfer.NewStager(cfg.Migration.StagingDir, source, logger.Named("transfer"))
		}
		if cfg.Migration.LedgerPath != "" {
			store, err := ledger.Open(cfg.Migration.LedgerPath)
			if err != nil {
				return abort(err)
			}
			defer store.Close()
			deps.Ledger = store
		}
	}

	o, err := migrate.NewOrchestrator(migrate.Options{
		DryRun:         dryRun,
		Until:          cfg.Migration.Until,
		CommunityID:    cfg.Destination.CommunityID,
		ReviewMessage:  cfg.Destination.ReviewMessage,
		AcceptMessage:  cfg.Destination.AcceptMessage,
		CreateRetries:  cfg.Migration.CreateRetries,
		CleanupFiles:   cfg.Migration.CleanupFiles,
		IncludePayload: includePayload,
	}, deps)
	if err != nil {
		return abort(err)
	}

	var src migrate.Source
	if len(records) > 0 {
		src = source.ByID(records)
	} else {
		src = source.Search(harvest.Query{
			Community:   cfg.Source.Community,
			Q:           query,
			Sort:        cfg.Source.Sort,
			AllVersions: cfg.Source.AllVersions,
			Start:       start,
			Limit:       limit,
		})
	}

	runner := &migrate.Runner{
		Orchestrator: o,
		StopOnError:  cfg.Migration.StopOnError,
		Progress:     cmd.OutOrStdout(),
		Logger:       logger.Named("run"),
	}
	runner.Run(ctx, src, summary)

	if err := migrate.WriteSummary(output, summary); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	migrate.PrintSummary(cmd.OutOrStdout(), summary)
	fmt.Fprintf(cmd.OutOrStdout(), "\nSummary written to %s\n", output)

	if summary.Aborted != "" {
		return fmt.Errorf("run aborted after %d record(s): %s", summary.Total(), summary.Aborted)
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d record(s) failed", summary.Counts[types.StatusFailed])
	}
	return nil
}
