// Package restore rebuilds a saved session's windows on the current
// displays.
package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/alexkorol/last-closed-tabgroups/internal/display"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// ErrRestoreInProgress is returned when Restore is called while another
// restore is running. The second request is dropped, not queued.
var ErrRestoreInProgress = errors.New("restore already in progress")

const (
	stateIdle int32 = iota
	stateRestoring
)

// RestoredWindow describes one window that was recreated.
type RestoredWindow struct {
	OriginalID platform.WindowID `json:"original_id"`
	WindowID   platform.WindowID `json:"window_id"`
	DisplayID  string            `json:"display_id"`
	Bounds     platform.Rect     `json:"bounds"`
	Tabs       int               `json:"tabs"`
}

// FailedWindow describes a saved window that could not be recreated.
type FailedWindow struct {
	OriginalID platform.WindowID `json:"original_id"`
	Error      string            `json:"error"`
}

// Report summarizes one Restore call.
type Report struct {
	RecordID      string           `json:"record_id,omitempty"`
	Restored      []RestoredWindow `json:"restored,omitempty"`
	Failed        []FailedWindow   `json:"failed,omitempty"`
	Skipped       int              `json:"skipped,omitempty"`
	ClosedInitial int              `json:"closed_initial,omitempty"`
	Cleared       bool             `json:"cleared"`
}

// Orchestrator restores the saved session. It owns the re-entrancy guard:
// at most one Restore runs at a time.
type Orchestrator struct {
	windows   platform.WindowService
	displays  *display.Directory
	store     *session.Store
	logger    *slog.Logger

	placement atomic.Pointer[Placement]
	state     atomic.Int32
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(windows platform.WindowService, displays *display.Directory, store *session.Store, placement Placement, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		windows:  windows,
		displays: displays,
		store:    store,
		logger:   logger,
	}
	o.SetPlacement(placement)
	return o
}

// SetPlacement replaces the placement policy used by later restores.
func (o *Orchestrator) SetPlacement(p Placement) {
	o.placement.Store(&p)
}

// Restoring reports whether a restore is running.
func (o *Orchestrator) Restoring() bool {
	return o.state.Load() == stateRestoring
}

// Restore recreates the saved windows whose original ids are in ids, or all
// saved windows when ids is empty. Per-window failures are recorded in the
// report and do not stop the restore.
func (o *Orchestrator) Restore(ctx context.Context, ids []platform.WindowID) (rep Report, err error) {
	if !o.state.CompareAndSwap(stateIdle, stateRestoring) {
		o.logger.Warn("restore requested while another is running, dropping")
		return Report{}, ErrRestoreInProgress
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("restore panicked: %v", r)
		}
		o.state.Store(stateIdle)
	}()

	rec, err := o.store.Load(ctx)
	if err != nil {
		return rep, err
	}
	if rec == nil || len(rec.Windows) == 0 {
		o.logger.Info("no saved session to restore")
		return rep, nil
	}
	rep.RecordID = rec.ID

	displays, err := o.displays.List(ctx)
	if err != nil {
		o.logger.Warn("display enumeration failed, using synthetic display", "error", err)
		displays = []platform.Display{display.Synthetic}
	}

	initial, err := o.windows.ListWindows(ctx)
	if err != nil {
		o.logger.Warn("failed to list initial windows", "error", err)
		initial = nil
	}

	snaps := selectSnapshots(rec.Windows, ids)
	var restorable []session.WindowSnapshot
	for _, s := range snaps {
		if len(s.Tabs) == 0 {
			o.logger.Debug("skipping saved window without tabs", "window", s.OriginalID)
			rep.Skipped++
			continue
		}
		restorable = append(restorable, s)
	}
	if len(restorable) == 0 {
		o.logger.Info("no saved windows matched the request", "requested", len(ids))
		return rep, nil
	}
	SortByDisplay(restorable)

	o.logger.Info("restoring session", "record", rec.ID, "windows", len(restorable), "displays", len(displays))

	for i, snap := range restorable {
		restored, err := o.restoreWindow(ctx, i, snap, displays)
		if err != nil {
			o.logger.Error("failed to restore window", "window", snap.OriginalID, "error", err)
			rep.Failed = append(rep.Failed, FailedWindow{OriginalID: snap.OriginalID, Error: err.Error()})
			continue
		}
		rep.Restored = append(rep.Restored, restored)
	}

	if len(rep.Restored) == 0 {
		o.logger.Warn("no windows were restored, keeping initial windows and saved session")
		return rep, nil
	}

	focused := true
	last := rep.Restored[len(rep.Restored)-1].WindowID
	if err := o.windows.UpdateWindow(ctx, last, platform.UpdateWindowOptions{Focused: &focused}); err != nil {
		o.logger.Warn("failed to focus window", "window", last, "error", err)
	}

	for _, w := range initial {
		if err := o.windows.RemoveWindow(ctx, w.ID); err != nil {
			o.logger.Warn("failed to close initial window", "window", w.ID, "error", err)
			continue
		}
		rep.ClosedInitial++
	}

	if err := o.store.Clear(ctx); err != nil {
		return rep, err
	}
	rep.Cleared = true

	o.logger.Info("restore complete", "restored", len(rep.Restored), "failed", len(rep.Failed))
	return rep, nil
}

func (o *Orchestrator) restoreWindow(ctx context.Context, i int, snap session.WindowSnapshot, displays []platform.Display) (RestoredWindow, error) {
	target := TargetDisplay(i, snap, displays)
	bounds := o.placement.Load().Bounds(snap, target)

	win, err := o.windows.CreateWindow(ctx, platform.CreateWindowOptions{
		Bounds:  &bounds,
		State:   platform.StateNormal,
		Focused: false,
	})
	if err != nil {
		return RestoredWindow{}, fmt.Errorf("create window: %w", err)
	}

	defaults := win.Tabs
	if defaults == nil {
		defaults, err = o.windows.ListTabs(ctx, win.ID)
		if err != nil {
			o.logger.Warn("failed to list default tabs", "window", win.ID, "error", err)
		}
	}

	created := 0
	for _, tab := range snap.Tabs {
		_, err := o.windows.CreateTab(ctx, win.ID, platform.CreateTabOptions{
			URL:    tab.URL,
			Pinned: tab.Pinned,
			Active: tab.Active,
		})
		if err != nil {
			o.logger.Warn("failed to restore tab", "window", win.ID, "url", tab.URL, "error", err)
			continue
		}
		created++
	}

	if created > 0 {
		for _, t := range defaults {
			if err := o.windows.RemoveTab(ctx, t.ID); err != nil {
				o.logger.Warn("failed to remove default tab", "window", win.ID, "tab", t.ID, "error", err)
			}
		}
	}

	if state := snap.State.OrNormal(); state != platform.StateNormal {
		if err := o.windows.UpdateWindow(ctx, win.ID, platform.UpdateWindowOptions{State: &state}); err != nil {
			o.logger.Warn("failed to apply window state", "window", win.ID, "state", state, "error", err)
		}
	}

	o.logPosition(ctx, win.ID)

	return RestoredWindow{
		OriginalID: snap.OriginalID,
		WindowID:   win.ID,
		DisplayID:  target.ID,
		Bounds:     bounds,
		Tabs:       created,
	}, nil
}

func (o *Orchestrator) logPosition(ctx context.Context, id platform.WindowID) {
	if !o.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	windows, err := o.windows.ListWindows(ctx)
	if err != nil {
		return
	}
	for _, w := range windows {
		if w.ID != id {
			continue
		}
		var left, top any = "unset", "unset"
		if w.Left != nil {
			left = *w.Left
		}
		if w.Top != nil {
			top = *w.Top
		}
		o.logger.Debug("window position after restore", "window", id, "left", left, "top", top)
		return
	}
}

// TargetDisplay picks the display for the i-th restored window: the saved
// display when it still exists, else the display matching the saved
// geometry, else displays[i mod n]. displays must not be empty.
func TargetDisplay(i int, snap session.WindowSnapshot, displays []platform.Display) platform.Display {
	if d, ok := display.ByID(displays, snap.DisplayID); ok {
		return d
	}
	if d, ok := display.MatchGeometry(snap.Geometry, displays); ok {
		return d
	}
	return displays[i%len(displays)]
}

// SortByDisplay orders snapshots by their saved display's left edge.
// Snapshots without saved display bounds go last. The sort is stable.
func SortByDisplay(snaps []session.WindowSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i].DisplayBounds, snaps[j].DisplayBounds
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Left < b.Left
	})
}

func selectSnapshots(all []session.WindowSnapshot, ids []platform.WindowID) []session.WindowSnapshot {
	if len(ids) == 0 {
		return append([]session.WindowSnapshot(nil), all...)
	}
	want := make(map[platform.WindowID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []session.WindowSnapshot
	for _, s := range all {
		if want[s.OriginalID] {
			out = append(out, s)
		}
	}
	return out
}
