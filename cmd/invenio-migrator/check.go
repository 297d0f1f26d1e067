package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/invenio-migrator/internal/harvest"
	"github.com/pdiddy/invenio-migrator/internal/httputil"
	"github.com/pdiddy/invenio-migrator/internal/invenio"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and probe both APIs",
	Long: `Check validates the configuration, counts the records of the source
community and looks up the destination community. Nothing is written.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("source-only", false, "skip the destination checks")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sourceOnly, _ := cmd.Flags().GetBool("source-only")
	if err := cfg.Validate(sourceOnly); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	source := harvest.NewClient(cfg.Source,
		httputil.NewClient(cfg.Source.HTTPConfig, cfg.Source.Token, false),
		logger.Named("harvest"))
	n, err := source.Count(ctx, harvest.Query{
		Community:   cfg.Source.Community,
		Sort:        cfg.Source.Sort,
		AllVersions: cfg.Source.AllVersions,
	})
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	fmt.Fprintf(out, "source      %s community %q: %d record(s)\n", cfg.Source.BaseURL, cfg.Source.Community, n)

	if sourceOnly {
		return nil
	}

	dest := invenio.NewClient(cfg.Destination,
		httputil.NewClient(cfg.Destination.HTTPConfig, cfg.Destination.Token, cfg.Destination.InsecureSkipVerify),
		logger.Named("invenio"))
	if cfg.Destination.CommunityID == "" {
		fmt.Fprintf(out, "destination %s: no community configured\n", cfg.Destination.BaseURL)
		return nil
	}
	c, err := dest.Community(ctx, cfg.Destination.CommunityID)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	fmt.Fprintf(out, "destination %s community %s (%s)\n", cfg.Destination.BaseURL, c.Slug, c.Title)
	return nil
}
