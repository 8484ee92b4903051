package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

type fakeTarget struct {
	id     string
	url    string
	window int64
}

type fakeBounds struct {
	Left        int64  `json:"left"`
	Top         int64  `json:"top"`
	Width       int64  `json:"width"`
	Height      int64  `json:"height"`
	WindowState string `json:"windowState"`
}

// fakeBrowser answers the subset of the DevTools protocol the host uses.
type fakeBrowser struct {
	mu         sync.Mutex
	targets    []*fakeTarget
	bounds     map[int64]*fakeBounds
	nextWin    int64
	nextTarget int
	lastActive int64
	placements []json.RawMessage
	conn       *websocket.Conn
	server     *httptest.Server
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{bounds: make(map[int64]*fakeBounds), nextWin: 100}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://%s/devtools/browser/x"}`, r.Host)
	})
	mux.HandleFunc("/devtools/browser/x", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conn = c
		fb.mu.Unlock()
		fb.serve(c)
	})
	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBrowser) wsURL() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http") + "/devtools/browser/x"
}

// openWindow seeds a window before the host connects.
func (fb *fakeBrowser) openWindow(b fakeBounds, urls ...string) int64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.nextWin++
	id := fb.nextWin
	bb := b
	fb.bounds[id] = &bb
	for _, u := range urls {
		fb.addTargetLocked(id, u)
	}
	fb.lastActive = id
	return id
}

func (fb *fakeBrowser) addTargetLocked(window int64, url string) *fakeTarget {
	fb.nextTarget++
	t := &fakeTarget{id: fmt.Sprintf("T%d", fb.nextTarget), url: url, window: window}
	fb.targets = append(fb.targets, t)
	return t
}

func (fb *fakeBrowser) find(id string) *fakeTarget {
	for _, t := range fb.targets {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (fb *fakeBrowser) windowBounds(id int64) fakeBounds {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return *fb.bounds[id]
}

// tearOff moves a target into a new window, as dragging a tab out does.
func (fb *fakeBrowser) tearOff(id string, b fakeBounds) int64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.nextWin++
	win := fb.nextWin
	bb := b
	fb.bounds[win] = &bb
	fb.find(id).window = win
	return win
}

func (fb *fakeBrowser) lastPlacement(t *testing.T) map[string]any {
	t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.NotEmpty(t, fb.placements)
	var p struct {
		Bounds map[string]any `json:"bounds"`
	}
	require.NoError(t, json.Unmarshal(fb.placements[len(fb.placements)-1], &p))
	return p.Bounds
}

func (fb *fakeBrowser) drop() {
	fb.mu.Lock()
	c := fb.conn
	fb.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

type fakeRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (fb *fakeBrowser) serve(c *websocket.Conn) {
	for {
		var req fakeRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		result, events, errMsg := fb.handle(req)
		resp := map[string]any{"id": req.ID}
		if errMsg != "" {
			resp["error"] = map[string]any{"code": -32000, "message": errMsg}
		} else {
			resp["result"] = result
		}
		if err := c.WriteJSON(resp); err != nil {
			return
		}
		for _, ev := range events {
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func info(t *fakeTarget) map[string]any {
	return map[string]any{"targetId": t.id, "type": "page", "title": "", "url": t.url, "attached": false, "canAccessOpener": false}
}

func (fb *fakeBrowser) handle(req fakeRequest) (any, []map[string]any, string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var p struct {
		TargetID   string      `json:"targetId"`
		URL        string      `json:"url"`
		NewWindow  bool        `json:"newWindow"`
		WindowID   int64       `json:"windowId"`
		Bounds     *fakeBounds `json:"bounds"`
		Background bool        `json:"background"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &p)
	}

	switch req.Method {
	case "Target.setDiscoverTargets":
		return map[string]any{}, nil, ""

	case "Target.getTargets":
		var infos []map[string]any
		for _, t := range fb.targets {
			infos = append(infos, info(t))
		}
		return map[string]any{"targetInfos": infos}, nil, ""

	case "Browser.getWindowForTarget":
		t := fb.find(p.TargetID)
		if t == nil {
			return nil, nil, "no target"
		}
		return map[string]any{"windowId": t.window, "bounds": fb.bounds[t.window]}, nil, ""

	case "Target.createTarget":
		win := fb.lastActive
		if p.NewWindow || win == 0 {
			fb.nextWin++
			win = fb.nextWin
			fb.bounds[win] = &fakeBounds{Left: 50, Top: 50, Width: 1000, Height: 700, WindowState: "normal"}
		}
		t := fb.addTargetLocked(win, p.URL)
		ev := map[string]any{"method": "Target.targetCreated", "params": map[string]any{"targetInfo": info(t)}}
		return map[string]any{"targetId": t.id}, []map[string]any{ev}, ""

	case "Target.closeTarget":
		for i, t := range fb.targets {
			if t.id == p.TargetID {
				fb.targets = append(fb.targets[:i], fb.targets[i+1:]...)
				ev := map[string]any{"method": "Target.targetDestroyed", "params": map[string]any{"targetId": t.id}}
				return map[string]any{"success": true}, []map[string]any{ev}, ""
			}
		}
		return nil, nil, "no target"

	case "Target.activateTarget":
		t := fb.find(p.TargetID)
		if t == nil {
			return nil, nil, "no target"
		}
		fb.lastActive = t.window
		return map[string]any{}, nil, ""

	case "Browser.setWindowBounds":
		fb.placements = append(fb.placements, req.Params)
		b, ok := fb.bounds[p.WindowID]
		if !ok || p.Bounds == nil {
			return nil, nil, "no window"
		}
		if p.Bounds.Width > 0 {
			b.Left, b.Top, b.Width, b.Height = p.Bounds.Left, p.Bounds.Top, p.Bounds.Width, p.Bounds.Height
		}
		if p.Bounds.WindowState != "" {
			b.WindowState = p.Bounds.WindowState
		}
		return map[string]any{}, nil, ""
	}
	return nil, nil, "unknown method " + req.Method
}

func startHost(t *testing.T, fb *fakeBrowser) *Host {
	t.Helper()
	ctx := context.Background()
	conn, err := Dial(ctx, fb.wsURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	h := NewHost(conn, Options{
		CloseDebounce:       200 * time.Millisecond,
		RecentlyClosedLimit: 10,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, h.Start(ctx))
	return h
}

func TestDiscover(t *testing.T) {
	fb := newFakeBrowser(t)

	v, err := Discover(context.Background(), fb.server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/120", v.Browser)
	assert.True(t, strings.HasPrefix(v.WebSocketDebuggerURL, "ws://"))

	v, err = Discover(context.Background(), "ws://example/devtools")
	require.NoError(t, err)
	assert.Equal(t, "ws://example/devtools", v.WebSocketDebuggerURL)
}

func TestDiscover_NoEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Discover(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHost_StartLoadsWindows(t *testing.T) {
	fb := newFakeBrowser(t)
	w1 := fb.openWindow(fakeBounds{Left: 0, Top: 0, Width: 800, Height: 600, WindowState: "normal"}, "https://a", "https://b")
	w2 := fb.openWindow(fakeBounds{Left: 2000, Top: 10, Width: 900, Height: 700, WindowState: "maximized"}, "https://c")

	h := startHost(t, fb)
	windows, err := h.ListWindows(context.Background())
	require.NoError(t, err)
	require.Len(t, windows, 2)

	byID := map[platform.WindowID]platform.Window{}
	for _, w := range windows {
		byID[w.ID] = w
	}
	assert.Len(t, byID[platform.WindowID(w1)].Tabs, 2)
	assert.Equal(t, platform.StateMaximized, byID[platform.WindowID(w2)].State)
	require.True(t, byID[platform.WindowID(w2)].HasPosition())
	assert.Equal(t, 2000, *byID[platform.WindowID(w2)].Left)
}

func TestHost_RemoveWindowRecordsClosedWindow(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBrowser(t)
	w1 := fb.openWindow(fakeBounds{Width: 800, Height: 600, WindowState: "normal"}, "https://a", "https://b")
	fb.openWindow(fakeBounds{Left: 900, Width: 800, Height: 600, WindowState: "normal"}, "https://c")
	h := startHost(t, fb)

	removed := make(chan platform.WindowID, 1)
	h.OnWindowRemoved(func(id platform.WindowID) { removed <- id })

	require.NoError(t, h.RemoveWindow(ctx, platform.WindowID(w1)))
	select {
	case id := <-removed:
		assert.Equal(t, platform.WindowID(w1), id)
	default:
		t.Fatal("listener did not run before RemoveWindow returned")
	}

	closed, err := h.RecentlyClosed(ctx)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].Window)
	assert.Len(t, closed[0].Window.Tabs, 2)

	windows, err := h.ListWindows(ctx)
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}

func TestHost_CreateWindowAndTabs(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBrowser(t)
	h := startHost(t, fb)

	bounds := platform.Rect{Left: 1920, Top: 40, Width: 1200, Height: 800}
	win, err := h.CreateWindow(ctx, platform.CreateWindowOptions{Bounds: &bounds, State: platform.StateNormal})
	require.NoError(t, err)
	require.Len(t, win.Tabs, 1)
	assert.Equal(t, BlankURL, win.Tabs[0].URL)

	got := fb.windowBounds(int64(win.ID))
	assert.Equal(t, int64(1920), got.Left)
	assert.Equal(t, int64(1200), got.Width)

	tab, err := h.CreateTab(ctx, win.ID, platform.CreateTabOptions{URL: "https://go.dev", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "https://go.dev", tab.URL)

	tabs, err := h.ListTabs(ctx, win.ID)
	require.NoError(t, err)
	require.Len(t, tabs, 2)

	require.NoError(t, h.RemoveTab(ctx, win.Tabs[0].ID))
	assert.Eventually(t, func() bool {
		tabs, err := h.ListTabs(ctx, win.ID)
		return err == nil && len(tabs) == 1
	}, time.Second, 5*time.Millisecond)

	state := platform.StateMaximized
	require.NoError(t, h.UpdateWindow(ctx, win.ID, platform.UpdateWindowOptions{State: &state}))
	assert.Equal(t, "maximized", fb.windowBounds(int64(win.ID)).WindowState)
}

func TestHost_DisconnectClosesAllWindows(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.openWindow(fakeBounds{Width: 800, Height: 600, WindowState: "normal"}, "https://a")
	fb.openWindow(fakeBounds{Left: 900, Width: 800, Height: 600, WindowState: "normal"}, "https://b")
	h := startHost(t, fb)

	var mu sync.Mutex
	var remaining []int
	h.OnWindowRemoved(func(platform.WindowID) {
		windows, _ := h.ListWindows(context.Background())
		mu.Lock()
		remaining = append(remaining, len(windows))
		mu.Unlock()
	})

	fb.drop()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("host did not notice the disconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, remaining)
	closed, err := h.RecentlyClosed(context.Background())
	require.NoError(t, err)
	assert.Len(t, closed, 2)

	_, err = h.CreateWindow(context.Background(), platform.CreateWindowOptions{})
	assert.Error(t, err)
}

func TestHost_CreateWindowAtOrigin(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBrowser(t)
	h := startHost(t, fb)

	bounds := platform.Rect{Left: 0, Top: 0, Width: 800, Height: 600}
	win, err := h.CreateWindow(ctx, platform.CreateWindowOptions{Bounds: &bounds, State: platform.StateNormal})
	require.NoError(t, err)

	sent := fb.lastPlacement(t)
	assert.Equal(t, float64(0), sent["left"])
	assert.Equal(t, float64(0), sent["top"])
	assert.Equal(t, float64(800), sent["width"])
	assert.Equal(t, "normal", sent["windowState"])

	got := fb.windowBounds(int64(win.ID))
	assert.Equal(t, int64(0), got.Left)
	assert.Equal(t, int64(0), got.Top)
}

func TestHost_RefreshFollowsTornOffTab(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBrowser(t)
	w1 := fb.openWindow(fakeBounds{Width: 800, Height: 600, WindowState: "normal"}, "https://a", "https://b")
	h := startHost(t, fb)

	w2 := fb.tearOff("T2", fakeBounds{Left: 1920, Width: 700, Height: 500, WindowState: "normal"})
	require.NoError(t, h.Refresh(ctx))

	windows, err := h.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, platform.WindowID(w1), windows[0].ID)
	require.Len(t, windows[0].Tabs, 1)
	assert.Equal(t, "https://a", windows[0].Tabs[0].URL)

	assert.Equal(t, platform.WindowID(w2), windows[1].ID)
	require.Len(t, windows[1].Tabs, 1)
	assert.Equal(t, "https://b", windows[1].Tabs[0].URL)
	require.True(t, windows[1].HasPosition())
	assert.Equal(t, 1920, *windows[1].Left)
}
