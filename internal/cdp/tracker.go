package cdp

import (
	"slices"
	"sync"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

type trackedTab struct {
	tab     platform.Tab
	closing bool
}

type trackedWindow struct {
	id    platform.WindowID
	state platform.WindowState
	geom  platform.Geometry
	tabs  []*trackedTab
	live  int
	flush *time.Timer
	gone  chan struct{}
}

func (w *trackedWindow) indexOf(id platform.TabID) int {
	for i, tt := range w.tabs {
		if tt.tab.ID == id {
			return i
		}
	}
	return -1
}

func (w *trackedWindow) snapshot(includeClosing bool) platform.Window {
	out := platform.Window{ID: w.id, State: w.state, Geometry: w.geom}
	out.Tabs = make([]platform.Tab, 0, len(w.tabs))
	for _, t := range w.tabs {
		if t.closing && !includeClosing {
			continue
		}
		out.Tabs = append(out.Tabs, t.tab)
	}
	return out
}

// tracker mirrors the browser's windows and tabs and turns tab destruction
// into recently-closed entries. Tabs destroyed within the debounce interval
// of their window's last tab are recorded as one closed window.
type tracker struct {
	mu       sync.Mutex
	debounce time.Duration
	limit    int
	now      func() time.Time

	order   []platform.WindowID
	windows map[platform.WindowID]*trackedWindow
	tabs    map[platform.TabID]platform.WindowID
	closed  []platform.ClosedSession

	listenersMu sync.Mutex
	listeners   []func(platform.WindowID)
}

func newTracker(debounce time.Duration, limit int) *tracker {
	if limit <= 0 {
		limit = 25
	}
	return &tracker{
		debounce: debounce,
		limit:    limit,
		now:      time.Now,
		windows:  make(map[platform.WindowID]*trackedWindow),
		tabs:     make(map[platform.TabID]platform.WindowID),
	}
}

func (t *tracker) onWindowRemoved(fn func(platform.WindowID)) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *tracker) notify(id platform.WindowID) {
	t.listenersMu.Lock()
	listeners := slices.Clone(t.listeners)
	t.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

func (t *tracker) windowLocked(id platform.WindowID) *trackedWindow {
	w, ok := t.windows[id]
	if !ok {
		w = &trackedWindow{id: id, state: platform.StateNormal, gone: make(chan struct{})}
		t.windows[id] = w
		t.order = append(t.order, id)
	}
	return w
}

// upsertTab records that tab lives in window id. Known tabs have their URL
// and title refreshed; a known tab reported in another window is moved
// there. A window left without tabs by a move is dropped without being
// recorded as closed.
func (t *tracker) upsertTab(id platform.WindowID, tab platform.Tab) {
	t.mu.Lock()
	if prev, ok := t.tabs[tab.ID]; ok {
		if w, ok := t.windows[prev]; ok {
			if i := w.indexOf(tab.ID); i >= 0 {
				tt := w.tabs[i]
				tt.tab.URL = tab.URL
				tt.tab.Title = tab.Title
				if tab.Active {
					tt.tab.Active = true
				}
				if prev == id {
					t.mu.Unlock()
					return
				}

				w.tabs = append(w.tabs[:i], w.tabs[i+1:]...)
				w.live--
				dst := t.windowLocked(id)
				dst.tabs = append(dst.tabs, tt)
				dst.live++
				t.tabs[tab.ID] = id
				if w.live > 0 {
					t.mu.Unlock()
					return
				}
				t.dropWindowLocked(w)
				t.mu.Unlock()

				t.notify(w.id)
				close(w.gone)
				return
			}
		}
	}

	w := t.windowLocked(id)
	w.tabs = append(w.tabs, &trackedTab{tab: tab})
	w.live++
	t.tabs[tab.ID] = id
	t.mu.Unlock()
}

// updateTab refreshes a known tab's URL and title.
func (t *tracker) updateTab(id platform.TabID, url, title string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	winID, ok := t.tabs[id]
	if !ok {
		return false
	}
	for _, tt := range t.windows[winID].tabs {
		if tt.tab.ID == id {
			tt.tab.URL = url
			tt.tab.Title = title
			return true
		}
	}
	return false
}

// setGeometry updates a window's bounds and state.
func (t *tracker) setGeometry(id platform.WindowID, geom platform.Geometry, state platform.WindowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return
	}
	if !geom.Empty() {
		w.geom = geom
	}
	w.state = state.OrNormal()
}

// removeTab handles a destroyed tab. When it was the window's last live tab
// the window is closed immediately and listeners are notified; otherwise the
// tab is held for the debounce interval.
func (t *tracker) removeTab(id platform.TabID) {
	t.mu.Lock()
	winID, ok := t.tabs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.tabs, id)
	w := t.windows[winID]
	for _, tt := range w.tabs {
		if tt.tab.ID == id && !tt.closing {
			tt.closing = true
			w.live--
			break
		}
	}

	if w.live > 0 {
		if w.flush == nil {
			w.flush = time.AfterFunc(t.debounce, func() { t.flushTabs(winID) })
		}
		t.mu.Unlock()
		return
	}

	t.closeWindowLocked(w)
	t.mu.Unlock()

	t.notify(winID)
	close(w.gone)
}

// closeWindowLocked drops w and records it, with all tabs closed during the
// debounce interval, as one recently-closed window.
func (t *tracker) closeWindowLocked(w *trackedWindow) {
	if w.flush != nil {
		w.flush.Stop()
		w.flush = nil
	}
	snap := w.snapshot(true)
	t.forgetLocked(w)
	t.pushLocked(platform.ClosedSession{Window: &snap, ClosedAt: t.now()})
}

// dropWindowLocked forgets a window whose live tabs all moved elsewhere.
// Tabs still held for the debounce interval are recorded on their own.
func (t *tracker) dropWindowLocked(w *trackedWindow) {
	if w.flush != nil {
		w.flush.Stop()
		w.flush = nil
	}
	for _, tt := range w.tabs {
		if tt.closing {
			tab := tt.tab
			t.pushLocked(platform.ClosedSession{Tab: &tab, ClosedAt: t.now()})
		}
	}
	t.forgetLocked(w)
}

func (t *tracker) forgetLocked(w *trackedWindow) {
	delete(t.windows, w.id)
	for i, id := range t.order {
		if id == w.id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	for _, tt := range w.tabs {
		if t.tabs[tt.tab.ID] == w.id {
			delete(t.tabs, tt.tab.ID)
		}
	}
}

func (t *tracker) flushTabs(winID platform.WindowID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[winID]
	if !ok {
		return
	}
	w.flush = nil
	kept := w.tabs[:0]
	for _, tt := range w.tabs {
		if tt.closing {
			tab := tt.tab
			t.pushLocked(platform.ClosedSession{Tab: &tab, ClosedAt: t.now()})
			continue
		}
		kept = append(kept, tt)
	}
	w.tabs = kept
}

func (t *tracker) pushLocked(s platform.ClosedSession) {
	t.closed = append([]platform.ClosedSession{s}, t.closed...)
	if len(t.closed) > t.limit {
		t.closed = t.closed[:t.limit]
	}
}

// closeAll records every tracked window as closed, one at a time in the
// order they were first seen, notifying listeners after each. It runs when
// the browser connection is lost.
func (t *tracker) closeAll() {
	for {
		t.mu.Lock()
		if len(t.order) == 0 {
			t.mu.Unlock()
			return
		}
		w := t.windows[t.order[0]]
		t.closeWindowLocked(w)
		t.mu.Unlock()

		t.notify(w.id)
		close(w.gone)
	}
}

func (t *tracker) list() []platform.Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]platform.Window, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.windows[id].snapshot(false))
	}
	return out
}

func (t *tracker) window(id platform.WindowID) (platform.Window, <-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return platform.Window{}, nil, false
	}
	return w.snapshot(false), w.gone, true
}

func (t *tracker) tabIDs() []platform.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]platform.TabID, 0, len(t.tabs))
	for id := range t.tabs {
		out = append(out, id)
	}
	return out
}

func (t *tracker) recentlyClosed() []platform.ClosedSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]platform.ClosedSession(nil), t.closed...)
}
