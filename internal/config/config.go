// Package config provides configuration management for the license reporting
// tool. Settings come from a YAML file with environment variable substitution,
// overridden by LICENSEVIEW_* environment variables, with validation and
// default values for all components.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/ALastoff/LicenseView/internal/auth"
	"github.com/ALastoff/LicenseView/internal/tlspolicy"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "LICENSEVIEW"
	// MinTimeoutSeconds is the minimum allowed request timeout.
	MinTimeoutSeconds = 1
	// MaxTimeoutSeconds is the maximum allowed request timeout.
	MaxTimeoutSeconds = 600
)

// Config represents the complete configuration for one reporting run.
type Config struct {
	// ZvmURL is the base URL of the ZVM management endpoint.
	ZvmURL string `mapstructure:"zvm_url"           envconfig:"ZVM_URL"`
	// Realm is the OIDC realm used by the modern token endpoint.
	Realm string `mapstructure:"realm"             envconfig:"REALM"`
	// VerifyTLS enables certificate chain validation.
	VerifyTLS bool `mapstructure:"verify_tls"        envconfig:"VERIFY_TLS"`
	// PinnedThumbprint is an optional SHA-256 certificate pin.
	PinnedThumbprint string `mapstructure:"pinned_thumbprint" envconfig:"PINNED_THUMBPRINT"`
	// CABundlePath is an optional PEM bundle replacing the system trust store.
	CABundlePath string `mapstructure:"ca_bundle_path"    envconfig:"CA_BUNDLE_PATH"`
	// TimeoutSeconds is the per-request timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"   envconfig:"TIMEOUT_SECONDS"`
	// HistoryPath is the usage history document location.
	HistoryPath string `mapstructure:"history_path"      envconfig:"HISTORY_PATH"`
	// Auth contains credentials and protocol selection.
	Auth AuthConfig `mapstructure:"auth"              envconfig:"AUTH"`
	// Alerts contains the utilization alert thresholds.
	Alerts AlertThresholds `mapstructure:"alert_thresholds"  envconfig:"ALERT"`
	// Output contains report destination settings.
	Output OutputConfig `mapstructure:"output"            envconfig:"OUTPUT"`
	// Logging contains logging configuration.
	Logging LoggingConfig `mapstructure:"logging"           envconfig:"LOGGING"`
}

// AuthConfig contains authentication credentials and protocol selection.
// Secrets in this struct must never be logged or serialized.
type AuthConfig struct {
	// Protocol selects the authentication protocols to attempt
	// (auto, modern, legacy).
	Protocol string `mapstructure:"protocol_version"     envconfig:"PROTOCOL"`
	// ClientIDCandidates are the OIDC client identities tried in order.
	ClientIDCandidates []string `mapstructure:"client_id_candidates" envconfig:"CLIENT_ID_CANDIDATES"`
	// ClientSecret is the optional OIDC client secret.
	ClientSecret string `mapstructure:"client_secret"        envconfig:"CLIENT_SECRET"`
	// Username is the ZVM account name.
	Username string `mapstructure:"username"             envconfig:"USERNAME"`
	// Password is the ZVM account password.
	Password string `mapstructure:"password"             envconfig:"PASSWORD"`
}

// AlertThresholds are the utilization alert thresholds as fractions of
// capacity.
type AlertThresholds struct {
	// Warn triggers a warning alert (e.g. 0.80 for 80%).
	Warn float64 `mapstructure:"warn" envconfig:"WARN"`
	// Crit triggers a critical alert.
	Crit float64 `mapstructure:"crit" envconfig:"CRIT"`
}

// OutputConfig contains report destination settings.
type OutputConfig struct {
	// Dir is the directory reports are written to.
	Dir string `mapstructure:"dir"     envconfig:"DIR"`
	// Formats are the report formats to render (html, csv, json).
	Formats []string `mapstructure:"formats" envconfig:"FORMATS"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `mapstructure:"level"       envconfig:"LEVEL"`
	// Format is the log output format (json, text).
	Format string `mapstructure:"format"      envconfig:"FORMAT"`
	// File is an optional log file path written alongside stderr.
	File string `mapstructure:"file"        envconfig:"FILE"`
	// MaxSizeMB is the log file size that triggers archive rotation.
	MaxSizeMB int `mapstructure:"max_size_mb" envconfig:"MAX_SIZE_MB"`
}

// defaults returns a Config populated with the baseline values the YAML file
// and environment overrides are layered on top of.
func defaults() *Config {
	return &Config{
		Realm:          "zerto",
		VerifyTLS:      true,
		TimeoutSeconds: 30,
		HistoryPath:    "license_history.json",
		Auth: AuthConfig{
			Protocol:           string(auth.ModeAuto),
			ClientIDCandidates: []string{"zerto-client", "admin-cli"},
		},
		Alerts: AlertThresholds{Warn: 0.80, Crit: 0.95},
		Output: OutputConfig{
			Dir:     "reports",
			Formats: []string{"html", "csv", "json"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 5,
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} references in the raw YAML with environment
// variable values. Unset variables are left verbatim so validation reports
// them instead of silently producing empty fields.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// Load reads the YAML file at path, applies environment variable overrides,
// and returns a validated Config. It returns an error when the file is
// missing, unparseable, or fails validation.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(expandEnvVars(string(raw)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs comprehensive validation of all configuration values.
func (c *Config) Validate() error {
	if c.ZvmURL == "" {
		return errors.New("zvm_url is required")
	}
	parsed, err := url.Parse(c.ZvmURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("zvm_url must be an http(s) URL: %q", c.ZvmURL)
	}

	if c.Auth.Username == "" || c.Auth.Password == "" {
		return errors.New("auth.username and auth.password are required")
	}

	switch auth.Mode(c.Auth.Protocol) {
	case auth.ModeAuto, auth.ModeModern, auth.ModeLegacy:
	default:
		return fmt.Errorf("auth.protocol_version must be one of auto, modern, legacy: %q", c.Auth.Protocol)
	}

	if c.TimeoutSeconds < MinTimeoutSeconds || c.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between %d and %d", MinTimeoutSeconds, MaxTimeoutSeconds)
	}

	if c.Alerts.Warn <= 0 || c.Alerts.Warn > 1 || c.Alerts.Crit <= 0 || c.Alerts.Crit > 1 {
		return errors.New("alert thresholds must be fractions in (0, 1]")
	}
	if c.Alerts.Warn >= c.Alerts.Crit {
		return errors.New("alert_thresholds.warn must be below alert_thresholds.crit")
	}

	if len(c.Output.Formats) == 0 {
		return errors.New("output.formats must name at least one format")
	}
	validFormats := map[string]bool{"html": true, "csv": true, "json": true}
	for _, format := range c.Output.Formats {
		if !validFormats[strings.ToLower(format)] {
			return fmt.Errorf("unsupported output format: %s", format)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("unsupported log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unsupported log format: %s", c.Logging.Format)
	}

	return nil
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TLSPolicy assembles the transport security policy for this run.
func (c *Config) TLSPolicy() tlspolicy.Policy {
	return tlspolicy.Policy{
		Verify:           c.VerifyTLS,
		PinnedThumbprint: c.PinnedThumbprint,
		CABundlePath:     c.CABundlePath,
	}
}

// AuthMode returns the negotiation mode selected by the configuration.
func (c *Config) AuthMode() auth.Mode {
	return auth.Mode(c.Auth.Protocol)
}

// Credentials assembles the authentication credentials for this run.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		Username:           c.Auth.Username,
		Password:           c.Auth.Password,
		ClientIDCandidates: c.Auth.ClientIDCandidates,
		ClientSecret:       c.Auth.ClientSecret,
	}
}
