package main

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pdiddy/invenio-migrator/internal/secrets"
	"github.com/pdiddy/invenio-migrator/pkg/types"
)

const (
	defaultSourceURL   = "https://zenodo.org/api"
	defaultUserAgent   = "invenio-migrator/0.1"
	defaultPageSize    = 100
	defaultMaxRetries  = 3
	defaultSourceDelay = 250 * time.Millisecond
	defaultTimeout     = 60 * time.Second
	defaultUploadLimit = 10 * time.Minute
)

// setDefaults registers every configuration key so environment variables
// are picked up by Unmarshal even when no config file sets them.
func setDefaults() {
	defaults := map[string]any{
		"source.base_url":      defaultSourceURL,
		"source.community":     "",
		"source.token":         "",
		"source.page_size":     defaultPageSize,
		"source.sort":          "oldest",
		"source.all_versions":  false,
		"source.max_retries":   defaultMaxRetries,
		"source.timeout":       defaultTimeout,
		"source.user_agent":    defaultUserAgent,
		"source.request_delay": defaultSourceDelay,

		"destination.base_url":             "",
		"destination.token":                "",
		"destination.community_id":         "",
		"destination.insecure_skip_verify": false,
		"destination.review_message":       "Migrated from Zenodo.",
		"destination.accept_message":       "Accepted during migration.",
		"destination.timeout":              defaultUploadLimit,
		"destination.user_agent":           defaultUserAgent,
		"destination.request_delay":        time.Duration(0),

		"migration.include_files":  false,
		"migration.include_pids":   true,
		"migration.until":          string(types.StatusApproved),
		"migration.create_retries": defaultMaxRetries,
		"migration.staging_dir":    "staging",
		"migration.cleanup_files":  true,
		"migration.ledger_path":    ".invenio-migrator/ledger.db",
		"migration.stop_on_error":  false,

		"logging.level":  "info",
		"logging.format": "console",
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// loadConfig decodes the merged configuration and fills tokens from
// .secrets/ when they are not configured.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.Source.Token = loadedSecrets.Resolve(secrets.SourceToken, cfg.Source.Token)
	cfg.Destination.Token = loadedSecrets.Resolve(secrets.DestinationToken, cfg.Destination.Token)
	return cfg, nil
}
