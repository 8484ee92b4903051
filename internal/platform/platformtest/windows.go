// Package platformtest provides in-memory platform services for tests.
package platformtest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// BlankURL is the URL of the tab every new window starts with.
const BlankURL = "about:blank"

// Windows is an in-memory platform.WindowService. It records every mutating
// call and can inject failures.
type Windows struct {
	mu        sync.Mutex
	nextWin   platform.WindowID
	nextTab   int
	order     []platform.WindowID
	windows   map[platform.WindowID]*platform.Window
	closed    []platform.ClosedSession
	listeners []func(platform.WindowID)

	// Created lists the options of every successful CreateWindow call.
	Created []platform.CreateWindowOptions
	// Updates lists every UpdateWindow call in order.
	Updates []Update

	// FailCreateWindow, when set, is consulted with the 1-based call number
	// before a window is created.
	FailCreateWindow func(call int) error
	// FailCreateTab, when set, is consulted with the requested URL.
	FailCreateTab func(url string) error
	// FailRemoveWindow, when set, is consulted before a window is removed.
	FailRemoveWindow func(id platform.WindowID) error
	// BeforeCreateWindow runs (without the lock held) at the start of every
	// CreateWindow call.
	BeforeCreateWindow func()

	createCalls int
}

// Update is one recorded UpdateWindow call.
type Update struct {
	WindowID platform.WindowID
	Opts     platform.UpdateWindowOptions
}

var _ platform.WindowService = (*Windows)(nil)

// NewWindows returns an empty fake with window ids starting at 1.
func NewWindows() *Windows {
	return &Windows{
		nextWin: 1,
		windows: make(map[platform.WindowID]*platform.Window),
	}
}

// Open adds an already-open window with the given tab URLs.
func (w *Windows) Open(geom platform.Geometry, urls ...string) platform.WindowID {
	w.mu.Lock()
	defer w.mu.Unlock()
	win := w.newWindowLocked(geom, platform.StateNormal)
	for _, u := range urls {
		w.appendTabLocked(win, platform.CreateTabOptions{URL: u})
	}
	return win.ID
}

// SetRecentlyClosed replaces the recently-closed list (newest first).
func (w *Windows) SetRecentlyClosed(sessions []platform.ClosedSession) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = append([]platform.ClosedSession(nil), sessions...)
}

// Window returns a copy of the window with the given id.
func (w *Windows) Window(id platform.WindowID) (platform.Window, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[id]
	if !ok {
		return platform.Window{}, false
	}
	return copyWindow(win), true
}

func (w *Windows) ListWindows(ctx context.Context) ([]platform.Window, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]platform.Window, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, copyWindow(w.windows[id]))
	}
	return out, nil
}

func (w *Windows) CreateWindow(ctx context.Context, opts platform.CreateWindowOptions) (platform.Window, error) {
	if hook := w.BeforeCreateWindow; hook != nil {
		hook()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.createCalls++
	if w.FailCreateWindow != nil {
		if err := w.FailCreateWindow(w.createCalls); err != nil {
			return platform.Window{}, err
		}
	}

	var geom platform.Geometry
	if opts.Bounds != nil {
		geom = platform.GeometryFromRect(*opts.Bounds)
	}
	win := w.newWindowLocked(geom, opts.State.OrNormal())
	win.Focused = opts.Focused
	w.appendTabLocked(win, platform.CreateTabOptions{URL: BlankURL, Active: true})
	w.Created = append(w.Created, opts)
	return copyWindow(win), nil
}

func (w *Windows) CreateTab(ctx context.Context, windowID platform.WindowID, opts platform.CreateTabOptions) (platform.Tab, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailCreateTab != nil {
		if err := w.FailCreateTab(opts.URL); err != nil {
			return platform.Tab{}, err
		}
	}
	win, ok := w.windows[windowID]
	if !ok {
		return platform.Tab{}, fmt.Errorf("window %d not found", windowID)
	}
	return w.appendTabLocked(win, opts), nil
}

func (w *Windows) ListTabs(ctx context.Context, windowID platform.WindowID) ([]platform.Tab, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[windowID]
	if !ok {
		return nil, fmt.Errorf("window %d not found", windowID)
	}
	return append([]platform.Tab(nil), win.Tabs...), nil
}

func (w *Windows) RemoveTab(ctx context.Context, tabID platform.TabID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, win := range w.windows {
		for i, tab := range win.Tabs {
			if tab.ID == tabID {
				win.Tabs = append(win.Tabs[:i], win.Tabs[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("tab %s not found", tabID)
}

func (w *Windows) UpdateWindow(ctx context.Context, windowID platform.WindowID, opts platform.UpdateWindowOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	win, ok := w.windows[windowID]
	if !ok {
		return fmt.Errorf("window %d not found", windowID)
	}
	if opts.State != nil {
		win.State = *opts.State
	}
	if opts.Focused != nil {
		win.Focused = *opts.Focused
	}
	w.Updates = append(w.Updates, Update{WindowID: windowID, Opts: opts})
	return nil
}

func (w *Windows) RemoveWindow(ctx context.Context, windowID platform.WindowID) error {
	w.mu.Lock()
	if w.FailRemoveWindow != nil {
		if err := w.FailRemoveWindow(windowID); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	win, ok := w.windows[windowID]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("window %d not found", windowID)
	}
	delete(w.windows, windowID)
	for i, id := range w.order {
		if id == windowID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	closedWin := copyWindow(win)
	w.closed = append([]platform.ClosedSession{{Window: &closedWin, ClosedAt: time.Now()}}, w.closed...)
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(windowID)
	}
	return nil
}

func (w *Windows) OnWindowRemoved(fn func(platform.WindowID)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Windows) RecentlyClosed(ctx context.Context) ([]platform.ClosedSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]platform.ClosedSession(nil), w.closed...), nil
}

func (w *Windows) newWindowLocked(geom platform.Geometry, state platform.WindowState) *platform.Window {
	win := &platform.Window{ID: w.nextWin, State: state, Geometry: geom}
	w.nextWin++
	w.windows[win.ID] = win
	w.order = append(w.order, win.ID)
	return win
}

func (w *Windows) appendTabLocked(win *platform.Window, opts platform.CreateTabOptions) platform.Tab {
	w.nextTab++
	tab := platform.Tab{
		ID:     platform.TabID(fmt.Sprintf("tab-%d", w.nextTab)),
		URL:    opts.URL,
		Pinned: opts.Pinned,
		Active: opts.Active,
	}
	win.Tabs = append(win.Tabs, tab)
	return tab
}

func copyWindow(win *platform.Window) platform.Window {
	out := *win
	out.Tabs = append([]platform.Tab(nil), win.Tabs...)
	return out
}
