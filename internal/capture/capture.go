// Package capture saves the browsing session when the last window closes.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/display"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// Outcome classifies what a capture attempt did.
type Outcome int

const (
	// Ignored means a restore was in progress or windows were being closed
	// on purpose.
	Ignored Outcome = iota
	// WindowsRemain means other windows are still open.
	WindowsRemain
	// NothingToSave means no closed window carried window detail.
	NothingToSave
	// Saved means a record was written.
	Saved
	// Failed means a collaborator call failed; Result.Err holds the cause.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case WindowsRemain:
		return "windows_remain"
	case NothingToSave:
		return "nothing_to_save"
	case Saved:
		return "saved"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result reports the outcome of one capture attempt.
type Result struct {
	Outcome Outcome
	// Windows is the number of windows written when Outcome is Saved.
	Windows int
	Err     error
}

// Guard reports whether a restore is running.
type Guard interface {
	Restoring() bool
}

// Controller reacts to window removal and writes the session record exactly
// once per transition to zero open windows.
type Controller struct {
	windows  platform.WindowService
	displays *display.Directory
	store    *session.Store
	guard    Guard
	logger   *slog.Logger
	now      func() time.Time

	closing atomic.Bool
}

// NewController creates a controller. guard may be nil when no restore
// orchestrator is running in the process.
func NewController(windows platform.WindowService, displays *display.Directory, store *session.Store, guard Guard, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		windows:  windows,
		displays: displays,
		store:    store,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleWindowRemoved is the window-removed subscriber. It never returns an
// error; failures are logged.
func (c *Controller) HandleWindowRemoved(ctx context.Context, id platform.WindowID) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("capture panic recovered", "window", id, "error", r)
		}
	}()

	res := c.Capture(ctx)
	switch res.Outcome {
	case Ignored:
		c.logger.Debug("ignoring window close", "window", id)
	case WindowsRemain:
		c.logger.Debug("windows remain open", "window", id)
	case NothingToSave:
		c.logger.Info("last window closed, nothing to save", "window", id)
	case Saved:
		c.logger.Info("session saved", "window", id, "windows", res.Windows)
	case Failed:
		c.logger.Error("session capture failed", "window", id, "error", res.Err)
	}
}

// Capture runs one capture attempt.
func (c *Controller) Capture(ctx context.Context) Result {
	if c.closing.Load() || (c.guard != nil && c.guard.Restoring()) {
		return Result{Outcome: Ignored}
	}

	open, err := c.windows.ListWindows(ctx)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("list windows: %w", err)}
	}
	if len(open) > 0 {
		return Result{Outcome: WindowsRemain}
	}

	closed, err := c.windows.RecentlyClosed(ctx)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("recently closed: %w", err)}
	}
	var windows []platform.Window
	for _, s := range closed {
		if s.Window != nil {
			windows = append(windows, *s.Window)
		}
	}
	if len(windows) == 0 {
		return Result{Outcome: NothingToSave}
	}

	return c.save(ctx, windows)
}

// SaveOpenWindows snapshots the open windows whose ids are in ids (all open
// windows when ids is empty), saves them and closes them. Window closes
// caused by this call do not trigger a capture.
func (c *Controller) SaveOpenWindows(ctx context.Context, ids []platform.WindowID) (Result, error) {
	if c.guard != nil && c.guard.Restoring() {
		return Result{Outcome: Ignored}, nil
	}
	if !c.closing.CompareAndSwap(false, true) {
		return Result{Outcome: Ignored}, nil
	}
	defer c.closing.Store(false)

	open, err := c.windows.ListWindows(ctx)
	if err != nil {
		return Result{Outcome: Failed, Err: err}, fmt.Errorf("list windows: %w", err)
	}

	want := make(map[platform.WindowID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []platform.Window
	for _, w := range open {
		if len(want) > 0 && !want[w.ID] {
			continue
		}
		if w.Tabs == nil {
			tabs, err := c.windows.ListTabs(ctx, w.ID)
			if err != nil {
				c.logger.Warn("failed to list tabs", "window", w.ID, "error", err)
			}
			w.Tabs = tabs
		}
		selected = append(selected, w)
	}
	if len(selected) == 0 {
		return Result{Outcome: NothingToSave}, nil
	}

	res := c.save(ctx, selected)
	if res.Outcome != Saved {
		return res, res.Err
	}

	for _, w := range selected {
		if err := c.windows.RemoveWindow(ctx, w.ID); err != nil {
			c.logger.Warn("failed to close window", "window", w.ID, "error", err)
		}
	}
	return res, nil
}

func (c *Controller) save(ctx context.Context, windows []platform.Window) Result {
	displays, err := c.displays.List(ctx)
	if err != nil {
		c.logger.Warn("display enumeration failed, saving without displays", "error", err)
		displays = nil
	}

	snaps := make([]session.WindowSnapshot, 0, len(windows))
	for _, w := range windows {
		snap := Snapshot(w, displays)
		c.logger.Debug("window position before save",
			"window", w.ID,
			"left", derefOr(w.Left),
			"top", derefOr(w.Top),
			"display", snap.DisplayID,
		)
		snaps = append(snaps, snap)
	}

	rec := session.NewRecord(snaps, c.now())
	if err := c.store.Save(ctx, rec); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	return Result{Outcome: Saved, Windows: len(snaps)}
}

// Snapshot converts a window into its saved form, resolving its display
// against displays. Windows without a usable position are attributed to the
// first display.
func Snapshot(w platform.Window, displays []platform.Display) session.WindowSnapshot {
	snap := session.WindowSnapshot{
		OriginalID: w.ID,
		Geometry:   w.Geometry,
		State:      w.State.OrNormal(),
		Tabs:       make([]session.TabSnapshot, 0, len(w.Tabs)),
	}
	for _, t := range w.Tabs {
		snap.Tabs = append(snap.Tabs, session.TabSnapshot{
			URL:    t.URL,
			Title:  t.Title,
			Pinned: t.Pinned,
			Active: t.Active,
		})
	}

	d, ok := display.MatchGeometry(w.Geometry, displays)
	if !ok && len(displays) > 0 {
		d, ok = displays[0], true
	}
	if ok {
		bounds := d.Bounds
		snap.DisplayID = d.ID
		snap.DisplayBounds = &bounds
	}
	return snap
}

func derefOr(v *int) any {
	if v == nil {
		return "unset"
	}
	return *v
}
