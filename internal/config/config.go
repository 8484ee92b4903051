package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexkorol/last-closed-tabgroups/internal/runtimepath"
)

// EnvPrefix prefixes every environment override, e.g. LASTCLOSED_DEVTOOLS_URL.
const EnvPrefix = "lastclosed"

// Placement controls where restored windows land on their target display.
type Placement struct {
	// MinVisible is how many pixels of a window must remain on the display.
	MinVisible int `yaml:"min_visible" envconfig:"min_visible"`
	// DefaultSizePercent sizes windows that saved no size (1-100).
	DefaultSizePercent int `yaml:"default_size_percent" envconfig:"default_size_percent"`
	MaxWidth           int `yaml:"max_width" envconfig:"max_width"`   // 0 = unlimited
	MaxHeight          int `yaml:"max_height" envconfig:"max_height"` // 0 = unlimited
}

// Config is the effective daemon configuration.
type Config struct {
	// DevToolsURL is the browser's remote debugging endpoint, either the
	// HTTP address (http://127.0.0.1:9222) or a ws:// browser URL.
	DevToolsURL string `yaml:"devtools_url" envconfig:"devtools_url"`
	// StateFile is where the saved session is persisted. Empty means the
	// default under the XDG data directory.
	StateFile           string        `yaml:"state_file,omitempty" envconfig:"state_file"`
	RestoreOnStartup    bool          `yaml:"restore_on_startup" envconfig:"restore_on_startup"`
	StartupDelay        time.Duration `yaml:"startup_delay" envconfig:"startup_delay"`
	RefreshInterval     time.Duration `yaml:"refresh_interval" envconfig:"refresh_interval"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval" envconfig:"reconnect_interval"`
	CloseDebounce       time.Duration `yaml:"close_debounce" envconfig:"close_debounce"`
	RecentlyClosedLimit int           `yaml:"recently_closed_limit" envconfig:"recently_closed_limit"`
	LogLevel            string        `yaml:"log_level" envconfig:"log_level"`
	Placement           Placement     `yaml:"placement" envconfig:"placement"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DevToolsURL:         "http://127.0.0.1:9222",
		RestoreOnStartup:    true,
		StartupDelay:        2 * time.Second,
		RefreshInterval:     5 * time.Second,
		ReconnectInterval:   3 * time.Second,
		CloseDebounce:       500 * time.Millisecond,
		RecentlyClosedLimit: 25,
		LogLevel:            "info",
		Placement: Placement{
			MinVisible:         100,
			DefaultSizePercent: 80,
			MaxWidth:           1920,
			MaxHeight:          1200,
		},
	}
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolvedStateFile returns StateFile, or the default path when unset.
func (c *Config) ResolvedStateFile() (string, error) {
	if strings.TrimSpace(c.StateFile) != "" {
		return expandHome(c.StateFile)
	}
	return DefaultStateFile()
}

// DefaultStateFile returns $XDG_DATA_HOME/lastclosed/session.json.
func DefaultStateFile() (string, error) {
	return runtimepath.StateFile()
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// ValidationError pins a validation failure to a config key and, when known,
// the file position that set it.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DevToolsURL) == "" {
		return &ValidationError{Path: "devtools_url", Err: fmt.Errorf("devtools_url is required")}
	}
	switch {
	case strings.HasPrefix(c.DevToolsURL, "http://"),
		strings.HasPrefix(c.DevToolsURL, "https://"),
		strings.HasPrefix(c.DevToolsURL, "ws://"),
		strings.HasPrefix(c.DevToolsURL, "wss://"):
	default:
		return &ValidationError{Path: "devtools_url", Err: fmt.Errorf("devtools_url must be an http(s):// or ws(s):// URL")}
	}
	if c.StartupDelay < 0 {
		return &ValidationError{Path: "startup_delay", Err: fmt.Errorf("startup_delay must be >= 0")}
	}
	if c.RefreshInterval <= 0 {
		return &ValidationError{Path: "refresh_interval", Err: fmt.Errorf("refresh_interval must be > 0")}
	}
	if c.ReconnectInterval <= 0 {
		return &ValidationError{Path: "reconnect_interval", Err: fmt.Errorf("reconnect_interval must be > 0")}
	}
	if c.CloseDebounce <= 0 {
		return &ValidationError{Path: "close_debounce", Err: fmt.Errorf("close_debounce must be > 0")}
	}
	if c.RecentlyClosedLimit < 1 {
		return &ValidationError{Path: "recently_closed_limit", Err: fmt.Errorf("recently_closed_limit must be >= 1")}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if c.Placement.MinVisible < 0 {
		return &ValidationError{Path: "placement.min_visible", Err: fmt.Errorf("min_visible must be >= 0")}
	}
	if c.Placement.DefaultSizePercent < 1 || c.Placement.DefaultSizePercent > 100 {
		return &ValidationError{Path: "placement.default_size_percent", Err: fmt.Errorf("default_size_percent must be between 1 and 100")}
	}
	if c.Placement.MaxWidth < 0 {
		return &ValidationError{Path: "placement.max_width", Err: fmt.Errorf("max_width must be >= 0")}
	}
	if c.Placement.MaxHeight < 0 {
		return &ValidationError{Path: "placement.max_height", Err: fmt.Errorf("max_height must be >= 0")}
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
