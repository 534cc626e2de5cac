// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Browser drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Browser
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" validate:"omitempty,oneof=chromedp rod"` // Browser driver
	Headed bool   `json:"headed,omitempty" yaml:"headed,omitempty"`                                         // Show browser windows

	// Tools
	InProcess bool   `json:"in_process,omitempty" yaml:"in_process,omitempty"`                        // Run tools inside the auditor process, without crash isolation
	ScriptDir string `json:"script_dir,omitempty" yaml:"script_dir,omitempty"`                        // Directory of injected tool bundles
	NuValURL  string `json:"nuval_url,omitempty" yaml:"nuval_url,omitempty" validate:"omitempty,url"` // Nu Html Checker endpoint
	WAVEURL   string `json:"wave_url,omitempty" yaml:"wave_url,omitempty" validate:"omitempty,url"`   // WAVE API endpoint
	WAVEKey   string `json:"wave_key,omitempty" yaml:"wave_key,omitempty"`                            // WAVE API key

	// Dispatch
	JobDir       string `json:"job_dir,omitempty" yaml:"job_dir,omitempty"`                                // Directory holding todo/ and done/
	ReportDir    string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`                          // Directory reports are written to
	JobURL       string `json:"job_url,omitempty" yaml:"job_url,omitempty" validate:"omitempty,url"`       // Network job source
	ReportURL    string `json:"report_url,omitempty" yaml:"report_url,omitempty" validate:"omitempty,url"` // Default report destination
	Agent        string `json:"agent,omitempty" yaml:"agent,omitempty"`                                    // Agent name sent with job requests
	PollInterval int    `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty" validate:"gte=0"`   // Seconds between polls

	// Server
	Port        int    `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"` // HTTP API port
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`            // PostgreSQL connection URL

	// Logging
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"` // Minimum log level
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=json console"`        // Log encoding
	Verbose   bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`                                                      // Print progress and summaries
}

// Defaults returns the values used for settings nobody provided.
func Defaults() Config {
	return Config{
		Driver:       DriverChromedp,
		ScriptDir:    "scripts",
		NuValURL:     "https://validator.w3.org/nu/?out=json",
		WAVEURL:      "https://wave.webaim.org/api/request",
		JobDir:       "jobs",
		ReportDir:    "reports",
		Agent:        "auditor",
		PollInterval: 30,
		Port:         8080,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by each command after merging.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.ScriptDir != "" {
		if info, err := os.Stat(c.ScriptDir); err == nil && !info.IsDir() {
			return fmt.Errorf("config error: script_dir is not a directory: %s", c.ScriptDir)
		}
	}

	return nil
}

// ApplyEnv fills empty secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.WAVEKey == "" {
		c.WAVEKey = os.Getenv("WAVE_KEY")
	}
	if c.JobURL == "" {
		c.JobURL = os.Getenv("JOB_URL")
	}
	if c.ReportURL == "" {
		c.ReportURL = os.Getenv("REPORT_URL")
	}
	if c.Agent == "" {
		c.Agent = os.Getenv("AGENT")
	}
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&result.Driver, defaults.Driver)
	fill(&result.ScriptDir, defaults.ScriptDir)
	fill(&result.NuValURL, defaults.NuValURL)
	fill(&result.WAVEURL, defaults.WAVEURL)
	fill(&result.WAVEKey, defaults.WAVEKey)
	fill(&result.JobDir, defaults.JobDir)
	fill(&result.ReportDir, defaults.ReportDir)
	fill(&result.JobURL, defaults.JobURL)
	fill(&result.ReportURL, defaults.ReportURL)
	fill(&result.Agent, defaults.Agent)
	fill(&result.DatabaseURL, defaults.DatabaseURL)
	fill(&result.LogLevel, defaults.LogLevel)
	fill(&result.LogFormat, defaults.LogFormat)

	// Int fields: use default if zero
	if result.PollInterval == 0 {
		result.PollInterval = defaults.PollInterval
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
