// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the invenio-migrator CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/invenio-migrator/internal/logging"
	"github.com/pdiddy/invenio-migrator/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API tokens loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// logger is built from the logging settings before any subcommand runs.
var logger = zap.NewNop()

// rootCmd is the base command for the invenio-migrator CLI.
var rootCmd = &cobra.Command{
	Use:   "invenio-migrator",
	Short: "Migrate Zenodo community records into an InvenioRDM community",
	Long: `invenio-migrator harvests records from a Zenodo community, maps their
metadata to the InvenioRDM data model and drives each one through draft
creation, file upload, community submission and approval.

Runs are resumable: progress is recorded in a local ledger and records that
already reached the requested state are skipped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(viper.GetString("logging.level"), viper.GetString("logging.format"))
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./invenio-migrator.yaml or ~/.config/invenio-migrator/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	setDefaults()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("invenio-migrator")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "invenio-migrator"))
		}
	}

	viper.SetEnvPrefix("INVENIO_MIGRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("migration.include_files", "INVENIO_MIGRATOR_MIGRATION_INCLUDE_FILES", "INCLUDE_RECORD_FILES")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
