package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"spondcal/internal/model"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultAPIURL      = "https://api.spond.com/core/v1/"
	defaultTimezone    = "Europe/Amsterdam"
	defaultRefreshCron = "*/15 * * * *"
	defaultSettingsDB  = "/var/lib/spondcal/settings.db"
	defaultHTTPTimeout = 15
	defaultLogLevel    = "info"
	defaultPreviewPath = "/var/lib/spondcal/preview.png"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CaptureConfig controls the headless-browser PNG preview of the agenda.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
//
// Account credentials and the selected group are not part of the file;
// they live in the settings database so the Web UI can change them.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// APIURL is the Spond core API root, with trailing slash.
	APIURL string `yaml:"api_url" json:"api_url"`

	// Timezone is the IANA zone agenda times are displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for the background agenda refresh. Empty disables the scheduler.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HTTPTimeoutSeconds bounds each outbound API request.
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`

	// SettingsDB is the SQLite file holding credentials and selection.
	SettingsDB string `yaml:"settings_db" json:"settings_db"`

	// DefaultSorting / DefaultMaxEvents apply when neither the request nor
	// the saved selection specifies them.
	DefaultSorting   string `yaml:"default_sorting" json:"default_sorting"`
	DefaultMaxEvents int    `yaml:"default_max_events" json:"default_max_events"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             defaultListen,
		APIURL:             defaultAPIURL,
		Timezone:           defaultTimezone,
		RefreshCron:        defaultRefreshCron,
		HTTPTimeoutSeconds: defaultHTTPTimeout,
		SettingsDB:         defaultSettingsDB,
		DefaultSorting:     string(model.SortAscending),
		DefaultMaxEvents:   model.DefaultMaxEvents,
		LogLevel:           defaultLogLevel,
		Capture: CaptureConfig{
			Enabled:    false,
			OutputPath: defaultPreviewPath,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeout
	}
	if c.SettingsDB == "" {
		c.SettingsDB = defaultSettingsDB
	}
	c.DefaultSorting = string(model.ParseSortOrder(c.DefaultSorting))
	if c.DefaultMaxEvents <= 0 {
		c.DefaultMaxEvents = model.DefaultMaxEvents
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = defaultPreviewPath
	}
}

// HTTPTimeout returns the per-request API timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// DisplayDefaults returns the configured default display options.
func (c *Config) DisplayDefaults() model.DisplayOptions {
	return model.DisplayOptions{
		SortOrder: model.SortOrder(c.DefaultSorting),
		MaxEvents: c.DefaultMaxEvents,
	}.Normalize()
}

// Load reads the YAML config at path. On first run, when the file does not
// exist yet, the defaults are written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// The defaults are still usable; the caller decides.
			return cfg, fmt.Errorf("config: write defaults to %s: %w", path, err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".spondcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
