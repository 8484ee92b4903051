package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/browser"
	cdpexec "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// BlankURL is the URL new windows are opened with.
const BlankURL = "about:blank"

const removeWindowTimeout = 5 * time.Second

// Options configures a Host.
type Options struct {
	// CloseDebounce is how long a destroyed tab is held before it is
	// recorded on its own. Tabs of a window that fully closes within this
	// interval are recorded together as one closed window.
	CloseDebounce time.Duration
	// RecentlyClosedLimit bounds the recently-closed list.
	RecentlyClosedLimit int
	Logger              *slog.Logger
}

// Host implements platform.WindowService against a live browser.
type Host struct {
	conn    *Conn
	tracker *tracker
	logger  *slog.Logger
	done    chan struct{}
}

var _ platform.WindowService = (*Host)(nil)

// NewHost wraps an open connection. Call Start before using it.
func NewHost(conn *Conn, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.CloseDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Host{
		conn:    conn,
		tracker: newTracker(debounce, opts.RecentlyClosedLimit),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start enables target discovery, loads the current windows and begins
// processing browser events.
func (h *Host) Start(ctx context.Context) error {
	if err := target.SetDiscoverTargets(true).Do(h.exec(ctx)); err != nil {
		return fmt.Errorf("enable target discovery: %w", err)
	}
	if err := h.Refresh(ctx); err != nil {
		return err
	}
	go h.run(context.WithoutCancel(ctx))
	return nil
}

// Done is closed after the connection dropped and every tracked window was
// recorded as closed.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Refresh re-reads all page targets and their window bounds, dropping tabs
// the browser no longer reports.
func (h *Host) Refresh(ctx context.Context) error {
	infos, err := target.GetTargets().Do(h.exec(ctx))
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}

	seen := make(map[platform.TabID]bool, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		seen[platform.TabID(info.TargetID)] = true
		if err := h.track(ctx, info); err != nil {
			h.logger.Debug("failed to resolve target window", "target", info.TargetID, "error", err)
		}
	}
	for _, id := range h.tracker.tabIDs() {
		if !seen[id] {
			h.tracker.removeTab(id)
		}
	}
	return nil
}

func (h *Host) run(ctx context.Context) {
	defer close(h.done)
	for msg := range h.conn.Events() {
		h.handleEvent(ctx, msg)
	}
	h.logger.Info("browser connection closed", "error", h.conn.Err())
	h.tracker.closeAll()
}

func (h *Host) handleEvent(ctx context.Context, msg *cdproto.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event handler panic recovered", "method", msg.Method, "error", r)
		}
	}()

	switch msg.Method {
	case cdproto.EventTargetTargetCreated:
		var ev target.EventTargetCreated
		if err := easyjson.Unmarshal(msg.Params, &ev); err != nil || ev.TargetInfo == nil {
			return
		}
		if ev.TargetInfo.Type == "page" {
			if err := h.track(ctx, ev.TargetInfo); err != nil {
				h.logger.Debug("failed to resolve new target", "target", ev.TargetInfo.TargetID, "error", err)
			}
		}

	case cdproto.EventTargetTargetInfoChanged:
		var ev target.EventTargetInfoChanged
		if err := easyjson.Unmarshal(msg.Params, &ev); err != nil || ev.TargetInfo == nil {
			return
		}
		info := ev.TargetInfo
		if info.Type != "page" {
			return
		}
		// Re-resolve the window: the tab may have been dragged elsewhere.
		if err := h.track(ctx, info); err != nil {
			h.logger.Debug("failed to resolve changed target", "target", info.TargetID, "error", err)
			h.tracker.updateTab(platform.TabID(info.TargetID), info.URL, info.Title)
		}

	case cdproto.EventTargetTargetDestroyed:
		var ev target.EventTargetDestroyed
		if err := easyjson.Unmarshal(msg.Params, &ev); err != nil {
			return
		}
		h.tracker.removeTab(platform.TabID(ev.TargetID))
	}
}

func (h *Host) track(ctx context.Context, info *target.Info) error {
	winID, bounds, err := browser.GetWindowForTarget().WithTargetID(info.TargetID).Do(h.exec(ctx))
	if err != nil {
		return err
	}
	id := platform.WindowID(winID)
	h.tracker.upsertTab(id, platform.Tab{
		ID:    platform.TabID(info.TargetID),
		URL:   info.URL,
		Title: info.Title,
	})
	geom, state := fromBounds(bounds)
	h.tracker.setGeometry(id, geom, state)
	return nil
}

func (h *Host) ListWindows(ctx context.Context) ([]platform.Window, error) {
	return h.tracker.list(), nil
}

func (h *Host) CreateWindow(ctx context.Context, opts platform.CreateWindowOptions) (platform.Window, error) {
	ectx := h.exec(ctx)
	targetID, err := target.CreateTarget(BlankURL).
		WithNewWindow(true).
		WithBackground(!opts.Focused).
		Do(ectx)
	if err != nil {
		return platform.Window{}, fmt.Errorf("create window: %w", err)
	}
	winID, _, err := browser.GetWindowForTarget().WithTargetID(targetID).Do(ectx)
	if err != nil {
		return platform.Window{}, fmt.Errorf("resolve new window: %w", err)
	}

	if r := opts.Bounds; r != nil {
		err := h.conn.Execute(ctx, browser.CommandSetWindowBounds, placeParams{WindowID: winID, Bounds: *r}, nil)
		if err != nil {
			h.logger.Warn("failed to position window", "window", winID, "error", err)
		}
	}
	state := opts.State.OrNormal()
	if state != platform.StateNormal {
		if err := h.setState(ectx, winID, state); err != nil {
			h.logger.Warn("failed to set window state", "window", winID, "state", state, "error", err)
		}
	}

	id := platform.WindowID(winID)
	h.tracker.upsertTab(id, platform.Tab{ID: platform.TabID(targetID), URL: BlankURL, Active: true})
	var geom platform.Geometry
	if opts.Bounds != nil {
		geom = platform.GeometryFromRect(*opts.Bounds)
	}
	h.tracker.setGeometry(id, geom, state)

	win, _, ok := h.tracker.window(id)
	if !ok {
		return platform.Window{}, fmt.Errorf("window %d closed while being created", id)
	}
	return win, nil
}

// CreateTab opens a tab in windowID. DevTools cannot address a window
// directly, so the window is activated first and the tab opened in the
// last active window. Pinning is not exposed by the protocol and is ignored.
func (h *Host) CreateTab(ctx context.Context, windowID platform.WindowID, opts platform.CreateTabOptions) (platform.Tab, error) {
	win, _, ok := h.tracker.window(windowID)
	if !ok {
		return platform.Tab{}, fmt.Errorf("window %d not found", windowID)
	}
	ectx := h.exec(ctx)
	if len(win.Tabs) > 0 {
		if err := target.ActivateTarget(target.ID(win.Tabs[0].ID)).Do(ectx); err != nil {
			h.logger.Debug("failed to activate window", "window", windowID, "error", err)
		}
	}

	targetID, err := target.CreateTarget(opts.URL).WithBackground(!opts.Active).Do(ectx)
	if err != nil {
		return platform.Tab{}, fmt.Errorf("create tab: %w", err)
	}

	tab := platform.Tab{ID: platform.TabID(targetID), URL: opts.URL, Pinned: opts.Pinned, Active: opts.Active}
	placed := windowID
	if got, _, err := browser.GetWindowForTarget().WithTargetID(targetID).Do(ectx); err == nil {
		placed = platform.WindowID(got)
	}
	if placed != windowID {
		h.logger.Warn("tab opened in a different window", "want", windowID, "got", placed, "url", opts.URL)
	}
	h.tracker.upsertTab(placed, tab)
	return tab, nil
}

func (h *Host) ListTabs(ctx context.Context, windowID platform.WindowID) ([]platform.Tab, error) {
	win, _, ok := h.tracker.window(windowID)
	if !ok {
		return nil, fmt.Errorf("window %d not found", windowID)
	}
	return win.Tabs, nil
}

func (h *Host) RemoveTab(ctx context.Context, tabID platform.TabID) error {
	if err := target.CloseTarget(target.ID(tabID)).Do(h.exec(ctx)); err != nil {
		return fmt.Errorf("close tab %s: %w", tabID, err)
	}
	return nil
}

func (h *Host) UpdateWindow(ctx context.Context, windowID platform.WindowID, opts platform.UpdateWindowOptions) error {
	ectx := h.exec(ctx)
	if opts.State != nil {
		if err := h.setState(ectx, browser.WindowID(windowID), opts.State.OrNormal()); err != nil {
			return fmt.Errorf("set window %d state: %w", windowID, err)
		}
		win, _, _ := h.tracker.window(windowID)
		h.tracker.setGeometry(windowID, win.Geometry, *opts.State)
	}
	if opts.Focused != nil && *opts.Focused {
		win, _, ok := h.tracker.window(windowID)
		if !ok || len(win.Tabs) == 0 {
			return fmt.Errorf("window %d not found", windowID)
		}
		active := win.Tabs[0].ID
		for _, t := range win.Tabs {
			if t.Active {
				active = t.ID
			}
		}
		if err := target.ActivateTarget(target.ID(active)).Do(ectx); err != nil {
			return fmt.Errorf("focus window %d: %w", windowID, err)
		}
	}
	return nil
}

// RemoveWindow closes every tab of the window and waits until the browser
// reports the window gone, so removal listeners have run on return.
func (h *Host) RemoveWindow(ctx context.Context, windowID platform.WindowID) error {
	win, gone, ok := h.tracker.window(windowID)
	if !ok {
		return fmt.Errorf("window %d not found", windowID)
	}
	ectx := h.exec(ctx)
	for _, t := range win.Tabs {
		if err := target.CloseTarget(target.ID(t.ID)).Do(ectx); err != nil {
			return fmt.Errorf("close window %d: %w", windowID, err)
		}
	}

	timer := time.NewTimer(removeWindowTimeout)
	defer timer.Stop()
	select {
	case <-gone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("window %d did not close within %s", windowID, removeWindowTimeout)
	}
}

func (h *Host) OnWindowRemoved(fn func(platform.WindowID)) {
	h.tracker.onWindowRemoved(fn)
}

func (h *Host) RecentlyClosed(ctx context.Context) ([]platform.ClosedSession, error) {
	return h.tracker.recentlyClosed(), nil
}

func (h *Host) exec(ctx context.Context) context.Context {
	return cdpexec.WithExecutor(ctx, h.conn)
}

func (h *Host) setState(ctx context.Context, id browser.WindowID, state platform.WindowState) error {
	return browser.SetWindowBounds(id, &browser.Bounds{
		WindowState: browser.WindowState(state),
	}).Do(ctx)
}

// placeParams are Browser.setWindowBounds params for a normal window.
// browser.Bounds drops a zero left or top, so origin placements are encoded
// here with every field present.
type placeParams struct {
	WindowID browser.WindowID
	Bounds   platform.Rect
}

func (p placeParams) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"windowId":`)
	w.Int64(int64(p.WindowID))
	w.RawString(`,"bounds":{"left":`)
	w.Int(p.Bounds.Left)
	w.RawString(`,"top":`)
	w.Int(p.Bounds.Top)
	w.RawString(`,"width":`)
	w.Int(p.Bounds.Width)
	w.RawString(`,"height":`)
	w.Int(p.Bounds.Height)
	w.RawString(`,"windowState":`)
	w.String(string(browser.WindowStateNormal))
	w.RawString(`}}`)
}

func fromBounds(b *browser.Bounds) (platform.Geometry, platform.WindowState) {
	if b == nil {
		return platform.Geometry{}, platform.StateNormal
	}
	geom := platform.GeometryFromRect(platform.Rect{
		Left:   int(b.Left),
		Top:    int(b.Top),
		Width:  int(b.Width),
		Height: int(b.Height),
	})
	return geom, platform.WindowState(b.WindowState).OrNormal()
}
