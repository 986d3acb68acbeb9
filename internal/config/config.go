// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the connection string goes to the
// OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"sqlrun/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string `json:"log_level"`
	// OutputDir is where query result files are written.
	OutputDir string `json:"output_dir"`
	// Format is the default result file format (csv, csv-native, xlsx, parquet).
	Format string `json:"format"`
	// TimeoutSeconds is the per-statement deadline. 0 disables it.
	TimeoutSeconds int `json:"timeout_seconds"`
	// Workers bounds how many scripts run concurrently.
	Workers int `json:"workers"`
	// BatchSize is the writer flush interval in rows.
	BatchSize int `json:"batch_size"`
	// ChunkSize is the result streaming chunk in rows.
	ChunkSize int `json:"chunk_size"`
	FailFast  bool `json:"fail_fast"`
	// TimeoutOverrides raise or lower the deadline for scripts whose name
	// matches a pattern. First match wins.
	TimeoutOverrides []TimeoutOverride `json:"timeout_overrides,omitempty"`
}

// TimeoutOverride maps a script-name pattern to its own deadline.
type TimeoutOverride struct {
	// Pattern is a regular expression matched against the script base name.
	Pattern string `json:"pattern"`
	// Seconds replaces the default timeout for matching scripts. 0 means
	// no deadline.
	Seconds int `json:"seconds"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		LogLevel:       "info",
		OutputDir:      "output",
		Format:         "csv",
		TimeoutSeconds: 600,
		Workers:        4,
		BatchSize:      1000,
		ChunkSize:      10000,
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	c := Defaults()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Timeout returns the default per-statement deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TimeoutFor returns the deadline for a script, applying the first matching
// override. Patterns that fail to compile are skipped.
func (c Config) TimeoutFor(scriptName string) time.Duration {
	for _, ov := range c.TimeoutOverrides {
		re, err := regexp.Compile(ov.Pattern)
		if err != nil {
			continue
		}
		if re.MatchString(scriptName) {
			return time.Duration(ov.Seconds) * time.Second
		}
	}
	return c.Timeout()
}
