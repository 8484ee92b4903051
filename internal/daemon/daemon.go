// Package daemon keeps a browser connection open, saves the session when the
// last window closes and restores it when the browser starts again.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/capture"
	"github.com/alexkorol/last-closed-tabgroups/internal/config"
	"github.com/alexkorol/last-closed-tabgroups/internal/display"
	"github.com/alexkorol/last-closed-tabgroups/internal/ipc"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// ErrNotConnected is returned by operations that need a live browser.
var ErrNotConnected = errors.New("browser not connected")

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// ConfigPath is re-read on Reload. Empty disables file reloads.
	ConfigPath string
	// Version is recorded in the store; a change clears the saved session.
	Version  string
	Store    *session.Store
	Displays platform.DisplayService
	// Connect opens the browser. Defaults to ConnectCDP.
	Connect Connector
	Logger  *slog.Logger
	// Level, when set, is adjusted on reload to the configured log level.
	Level *slog.LevelVar
}

// Daemon implements ipc.Service on top of the current browser connection.
type Daemon struct {
	configPath string
	version    string
	store      *session.Store
	displays   *display.Directory
	connect    Connector
	logger     *slog.Logger
	level      *slog.LevelVar
	started    time.Time

	mu      sync.RWMutex
	cfg     *config.Config
	current *StateSynchronizer
	name    string

	stopping atomic.Bool
}

var _ ipc.Service = (*Daemon)(nil)

// New creates a daemon. It does not connect until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("daemon: config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("daemon: store is required")
	}
	connect := opts.Connect
	if connect == nil {
		connect = ConnectCDP
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		store:      opts.Store,
		displays:   display.NewDirectory(opts.Displays),
		connect:    connect,
		logger:     logger,
		level:      opts.Level,
		started:    time.Now(),
		cfg:        opts.Config,
	}, nil
}

// Run checks the install version, then connects to the browser and keeps
// reconnecting until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	cleared, err := d.store.CheckInstall(ctx, d.version)
	if err != nil {
		d.logger.Warn("install check failed", "error", err)
	} else if cleared {
		d.logger.Info("version changed, saved session cleared", "version", d.version)
	}

	if d.configPath != "" {
		go func() {
			err := config.Watch(ctx, d.configPath, func() {
				if err := d.Reload(); err != nil {
					d.logger.Warn("config reload failed", "error", err)
				}
			}, func(err error) {
				d.logger.Warn("config watch error", "error", err)
			})
			if err != nil {
				d.logger.Warn("config watch disabled", "path", d.configPath, "error", err)
			}
		}()
	}

	failures := 0
	for {
		cfg := d.config()
		b, err := d.connect(ctx, cfg, d.logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if failures == 0 {
				d.logger.Warn("browser not reachable, retrying", "url", cfg.DevToolsURL, "interval", cfg.ReconnectInterval, "error", err)
			} else {
				d.logger.Debug("browser still not reachable", "error", err)
			}
			failures++
		} else {
			failures = 0
			d.serve(ctx, b, cfg)
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.ReconnectInterval):
		}
	}
}

// serve runs one browser connection until it drops or ctx is cancelled.
func (d *Daemon) serve(ctx context.Context, b Browser, cfg *config.Config) {
	syncer := NewStateSynchronizer(ctx, b, d.displays, d.store, placementFrom(cfg), d.stopping.Load, d.logger)

	d.mu.Lock()
	d.current = syncer
	d.name = b.Name()
	d.mu.Unlock()
	d.logger.Info("connected to browser", "browser", b.Name())

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reconciler := NewReconciler(ReconcilerConfig{
		Interval: cfg.RefreshInterval,
		Logger:   d.logger,
	}, b)
	go reconciler.Run(connCtx)

	if cfg.RestoreOnStartup {
		go func() {
			select {
			case <-connCtx.Done():
				return
			case <-time.After(cfg.StartupDelay):
			}
			syncer.StartupRestore(connCtx)
		}()
	}

	select {
	case <-b.Done():
		d.logger.Info("browser disconnected")
	case <-ctx.Done():
		d.stopping.Store(true)
		b.Close()
		<-b.Done()
	}

	d.mu.Lock()
	d.current = nil
	d.name = ""
	d.mu.Unlock()
}

func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) active() (*StateSynchronizer, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.name
}

func placementFrom(cfg *config.Config) restore.Placement {
	return restore.Placement{
		MinVisible:         cfg.Placement.MinVisible,
		DefaultSizePercent: cfg.Placement.DefaultSizePercent,
		MaxWidth:           cfg.Placement.MaxWidth,
		MaxHeight:          cfg.Placement.MaxHeight,
	}
}

// Status reports connection and saved-session state.
func (d *Daemon) Status(ctx context.Context) ipc.StatusData {
	status := ipc.StatusData{
		DaemonRunning: true,
		UptimeSeconds: int64(time.Since(d.started).Seconds()),
	}

	if syncer, name := d.active(); syncer != nil {
		status.Connected = true
		status.Browser = name
		status.Restoring = syncer.restore.Restoring()
		if open, err := syncer.browser.ListWindows(ctx); err == nil {
			status.OpenWindows = len(open)
		}
	}

	rec, err := d.store.Load(ctx)
	if err != nil {
		d.logger.Warn("status: failed to load saved session", "error", err)
	} else if rec != nil {
		status.SavedWindows = len(rec.Windows)
		if !rec.SavedAt.IsZero() {
			savedAt := rec.SavedAt
			status.SavedAt = &savedAt
		}
	}
	return status
}

// Displays lists the current displays left to right.
func (d *Daemon) Displays(ctx context.Context) ([]platform.Display, error) {
	return d.displays.List(ctx)
}

// Restore restores saved windows into the connected browser.
func (d *Daemon) Restore(ctx context.Context, ids []platform.WindowID) (restore.Report, error) {
	syncer, _ := d.active()
	if syncer == nil {
		return restore.Report{}, ErrNotConnected
	}
	return syncer.restore.Restore(ctx, ids)
}

// Saved returns the saved session, or nil.
func (d *Daemon) Saved(ctx context.Context) (*session.Record, error) {
	return d.store.Load(ctx)
}

// OpenWindows lists the browser's open windows with the display each is on.
// OriginalID carries the live window id.
func (d *Daemon) OpenWindows(ctx context.Context) ([]session.WindowSnapshot, error) {
	syncer, _ := d.active()
	if syncer == nil {
		return nil, ErrNotConnected
	}
	open, err := syncer.browser.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	displays, err := d.displays.List(ctx)
	if err != nil {
		d.logger.Debug("display enumeration failed", "error", err)
		displays = nil
	}
	out := make([]session.WindowSnapshot, 0, len(open))
	for _, w := range open {
		out = append(out, capture.Snapshot(w, displays))
	}
	return out, nil
}

// ClearSaved discards the saved session.
func (d *Daemon) ClearSaved(ctx context.Context) error {
	d.logger.Info("clearing saved session")
	return d.store.Clear(ctx)
}

// SaveAndClose saves the selected open windows and closes them.
func (d *Daemon) SaveAndClose(ctx context.Context, ids []platform.WindowID) (capture.Result, error) {
	syncer, _ := d.active()
	if syncer == nil {
		return capture.Result{}, ErrNotConnected
	}
	res, err := syncer.capture.SaveOpenWindows(ctx, ids)
	if err == nil && res.Outcome == capture.Saved {
		d.logger.Info("saved and closed windows", "windows", res.Windows)
	}
	return res, err
}

// Reload re-reads the config file. Placement and log level apply at once;
// connection settings apply on the next connect.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file to reload")
	}
	res, err := config.LoadFromPath(d.configPath)
	if err != nil {
		return err
	}
	cfg := res.Config

	d.mu.Lock()
	d.cfg = cfg
	syncer := d.current
	d.mu.Unlock()

	if d.level != nil {
		d.level.Set(cfg.SlogLevel())
	}
	if syncer != nil {
		syncer.restore.SetPlacement(placementFrom(cfg))
	}
	d.logger.Info("configuration reloaded", "path", d.configPath)
	return nil
}
