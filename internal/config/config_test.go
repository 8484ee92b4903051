package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.StartupDelay != 2*time.Second {
		t.Fatalf("expected startup_delay 2s, got %s", cfg.StartupDelay)
	}
	if cfg.Placement.MinVisible != 100 {
		t.Fatalf("expected min_visible 100, got %d", cfg.Placement.MinVisible)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.File != "" {
		t.Fatalf("expected no file, got %q", res.File)
	}
	if res.Config.DevToolsURL != DefaultConfig().DevToolsURL {
		t.Fatalf("unexpected devtools_url %q", res.Config.DevToolsURL)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("# empty\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.Config.RestoreOnStartup {
		t.Fatalf("expected restore_on_startup default true")
	}
}

func TestLoadFromPath_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		"devtools_url: ws://127.0.0.1:9333/devtools/browser/abc",
		"startup_delay: 5s",
		"restore_on_startup: false",
		"log_level: debug",
		"placement:",
		"  min_visible: 40",
		"  max_width: 0",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.StartupDelay != 5*time.Second {
		t.Fatalf("expected 5s, got %s", cfg.StartupDelay)
	}
	if cfg.RestoreOnStartup {
		t.Fatalf("expected restore_on_startup false")
	}
	if cfg.Placement.MinVisible != 40 || cfg.Placement.MaxWidth != 0 {
		t.Fatalf("unexpected placement %+v", cfg.Placement)
	}
	if cfg.Placement.DefaultSizePercent != 80 {
		t.Fatalf("expected untouched default_size_percent, got %d", cfg.Placement.DefaultSizePercent)
	}
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
}

func TestLoadFromPath_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("hotkey: Mod4-t\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestLoadFromPath_ValidationErrorHasPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "log_level: info\nplacement:\n  default_size_percent: 150\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "placement.default_size_percent" {
		t.Fatalf("unexpected path %q", verr.Path)
	}
	if verr.Source.Line != 3 {
		t.Fatalf("expected line 3, got %d", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), path+":3:") {
		t.Fatalf("expected file position in %q", err.Error())
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	t.Setenv("LASTCLOSED_DEVTOOLS_URL", "http://10.0.0.2:9222")
	t.Setenv("LASTCLOSED_STARTUP_DELAY", "750ms")
	t.Setenv("LASTCLOSED_PLACEMENT_MIN_VISIBLE", "64")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("devtools_url: http://127.0.0.1:1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.DevToolsURL != "http://10.0.0.2:9222" {
		t.Fatalf("env should win over file, got %q", res.Config.DevToolsURL)
	}
	if res.Config.StartupDelay != 750*time.Millisecond {
		t.Fatalf("unexpected startup_delay %s", res.Config.StartupDelay)
	}
	if res.Config.Placement.MinVisible != 64 {
		t.Fatalf("unexpected min_visible %d", res.Config.Placement.MinVisible)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"empty url", func(c *Config) { c.DevToolsURL = "" }, "devtools_url"},
		{"bad scheme", func(c *Config) { c.DevToolsURL = "ftp://x" }, "devtools_url"},
		{"negative delay", func(c *Config) { c.StartupDelay = -time.Second }, "startup_delay"},
		{"zero refresh", func(c *Config) { c.RefreshInterval = 0 }, "refresh_interval"},
		{"zero debounce", func(c *Config) { c.CloseDebounce = 0 }, "close_debounce"},
		{"zero limit", func(c *Config) { c.RecentlyClosedLimit = 0 }, "recently_closed_limit"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"negative min visible", func(c *Config) { c.Placement.MinVisible = -1 }, "placement.min_visible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("expected path %q, got %q", tt.path, verr.Path)
			}
		})
	}
}

func TestResolvedStateFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	cfg := DefaultConfig()
	got, err := cfg.ResolvedStateFile()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "/tmp/xdg-data/lastclosed/session.json" {
		t.Fatalf("unexpected default state file %q", got)
	}

	cfg.StateFile = "/var/tmp/s.json"
	got, err = cfg.ResolvedStateFile()
	if err != nil || got != "/var/tmp/s.json" {
		t.Fatalf("unexpected state file %q (%v)", got, err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *res.Config != *cfg {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", res.Config, cfg)
	}
}

func TestWatch_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { changed <- struct{}{} }, nil)
	}()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644); err != nil {
		t.Fatalf("write other: %v", err)
	}
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected change notification")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
