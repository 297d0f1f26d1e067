package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPConfig holds shared HTTP settings used by both API clients.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "invenio-migrator/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestDelay is the minimum spacing between consecutive requests to
	// the same API. Zero disables pacing.
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay" mapstructure:"request_delay"`
}

// SourceConfig holds settings for harvesting the Zenodo community.
type SourceConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the API root, e.g. "https://zenodo.org/api".
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Community is the source community slug used to scope the search.
	Community string `json:"community" yaml:"community" mapstructure:"community"`

	// Token is the bearer token for the source API.
	Token string `json:"-" yaml:"-" mapstructure:"token"`

	// PageSize is the number of records requested per page (default 100).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// Sort is the source sort order. It must be stable for start offsets
	// to be meaningful (default "oldest").
	Sort string `json:"sort" yaml:"sort" mapstructure:"sort"`

	// AllVersions includes every version of a record, not only the latest.
	AllVersions bool `json:"all_versions" yaml:"all_versions" mapstructure:"all_versions"`

	// MaxRetries bounds retries of a single page on transient failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// DestinationConfig holds settings for the InvenioRDM instance.
type DestinationConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the API root, e.g. "https://repo.example.org/api".
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer token. Approval usually needs a curator token.
	Token string `json:"-" yaml:"-" mapstructure:"token"`

	// CommunityID is the target community UUID (not its slug).
	CommunityID string `json:"community_id" yaml:"community_id" mapstructure:"community_id"`

	// InsecureSkipVerify disables TLS verification for test instances.
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`

	// ReviewMessage is the comment attached to a community submission.
	ReviewMessage string `json:"review_message" yaml:"review_message" mapstructure:"review_message"`

	// AcceptMessage is the comment attached when accepting a submission.
	AcceptMessage string `json:"accept_message" yaml:"accept_message" mapstructure:"accept_message"`
}

// MigrationConfig holds workflow options.
type MigrationConfig struct {
	// IncludeFiles uploads record files to the destination draft.
	IncludeFiles bool `json:"include_files" yaml:"include_files" mapstructure:"include_files"`

	// IncludePIDs carries the source DOI over as an external pid.
	IncludePIDs bool `json:"include_pids" yaml:"include_pids" mapstructure:"include_pids"`

	// Until is the terminal workflow state: created, submitted, approved
	// or published.
	Until Status `json:"until" yaml:"until" mapstructure:"until"`

	// CreateRetries is how many times draft creation is retried on
	// transient destination failures.
	CreateRetries int `json:"create_retries" yaml:"create_retries" mapstructure:"create_retries"`

	// StagingDir receives downloaded files before upload.
	StagingDir string `json:"staging_dir" yaml:"staging_dir" mapstructure:"staging_dir"`

	// CleanupFiles removes staged files after a successful upload.
	CleanupFiles bool `json:"cleanup_files" yaml:"cleanup_files" mapstructure:"cleanup_files"`

	// LedgerPath is the sqlite file recording migration progress. Empty
	// disables the ledger.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`

	// StopOnError ends the run after the first failed record.
	StopOnError bool `json:"stop_on_error" yaml:"stop_on_error" mapstructure:"stop_on_error"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings the pipeline receives. It is built once by the
// command layer; pipeline packages never read the environment themselves.
type Config struct {
	Source      SourceConfig      `json:"source" yaml:"source" mapstructure:"source"`
	Destination DestinationConfig `json:"destination" yaml:"destination" mapstructure:"destination"`
	Migration   MigrationConfig   `json:"migration" yaml:"migration" mapstructure:"migration"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// ConfigError reports an invalid configuration key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %q: %s", e.Key, e.Reason)
}

// Validate checks the settings needed before any record is processed.
// Destination settings are only required when dryRun is false.
func (c Config) Validate(dryRun bool) error {
	if err := validateURL("source.base_url", c.Source.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Source.Token) == "" {
		return &ConfigError{Key: "source.token", Reason: "required"}
	}
	if c.Source.PageSize <= 0 {
		return &ConfigError{Key: "source.page_size", Reason: "must be positive"}
	}
	if !c.Migration.Until.IsWorkflowState() {
		return &ConfigError{Key: "migration.until", Reason: fmt.Sprintf("unsupported state %q", c.Migration.Until)}
	}
	if dryRun {
		return nil
	}

	if err := validateURL("destination.base_url", c.Destination.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Destination.Token) == "" {
		return &ConfigError{Key: "destination.token", Reason: "required"}
	}
	if c.Migration.Until != StatusCreated {
		if _, err := uuid.Parse(c.Destination.CommunityID); err != nil {
			return &ConfigError{Key: "destination.community_id", Reason: "must be a community UUID, not a slug"}
		}
	}
	if c.Migration.IncludeFiles && c.Migration.StagingDir == "" {
		return &ConfigError{Key: "migration.staging_dir", Reason: "required when files are included"}
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Key: key, Reason: fmt.Sprintf("invalid URL %q", raw)}
	}
	return nil
}
