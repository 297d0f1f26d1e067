package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/invenio-migrator/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the migration ledger",
	Long: `The ledger records, per source record, the destination draft, the review
request and the furthest state reached. Reruns use it to resume records and
to skip records that are already done.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		return withLedger(func(store *ledger.Store) error {
			entries, err := store.List(cmd.Context(), state)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tDESTINATION\tSTATE\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.SourceID, e.DestinationID, e.State, e.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		})
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all ledger entries as YAML or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withLedger(func(store *ledger.Store) error {
			return store.Export(cmd.Context(), cmd.OutOrStdout(), format)
		})
	},
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <source-id>...",
	Short: "Remove entries so the records are migrated from scratch",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(store *ledger.Store) error {
			for _, id := range args {
				deleted, err := store.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not in ledger\n", id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: forgotten\n", id)
			}
			return nil
		})
	},
}

func init() {
	ledgerListCmd.Flags().String("state", "", "only entries in this state")
	ledgerExportCmd.Flags().String("format", "yaml", "output format: yaml or json")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerExportCmd, ledgerForgetCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func withLedger(fn func(*ledger.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Migration.LedgerPath == "" {
		return fmt.Errorf("no ledger configured (migration.ledger_path)")
	}
	store, err := ledger.Open(cfg.Migration.LedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
