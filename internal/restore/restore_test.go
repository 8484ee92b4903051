package restore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexkorol/last-closed-tabgroups/internal/capture"
	"github.com/alexkorol/last-closed-tabgroups/internal/display"
	"github.com/alexkorol/last-closed-tabgroups/internal/kv"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform/platformtest"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

type fixture struct {
	windows  *platformtest.Windows
	displays *platformtest.Displays
	store    *session.Store
	orch     *Orchestrator
	ctrl     *capture.Controller
}

func newFixture(t *testing.T, displays ...platform.Display) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		windows:  platformtest.NewWindows(),
		displays: platformtest.NewDisplays(displays...),
		store:    session.NewStore(kv.NewMemory()),
	}
	dir := display.NewDirectory(f.displays)
	f.orch = NewOrchestrator(f.windows, dir, f.store, DefaultPlacement(), logger)
	f.ctrl = capture.NewController(f.windows, dir, f.store, f.orch, logger)
	ctx := context.Background()
	f.windows.OnWindowRemoved(func(id platform.WindowID) {
		f.ctrl.HandleWindowRemoved(ctx, id)
	})
	return f
}

func geom(left, top, width, height int) platform.Geometry {
	return platform.GeometryFromRect(platform.Rect{Left: left, Top: top, Width: width, Height: height})
}

func rectPtr(r platform.Rect) *platform.Rect { return &r }

func (f *fixture) save(t *testing.T, snaps ...session.WindowSnapshot) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), session.NewRecord(snaps, time.Now())))
}

func tabURLs(w platform.Window) []string {
	var out []string
	for _, tab := range w.Tabs {
		out = append(out, tab.URL)
	}
	return out
}

var (
	displayA = platformtest.Display("A", 0, 0, 1920, 1080)
	displayB = platformtest.Display("B", 1920, 0, 2560, 1440)
)

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA, displayB)

	onB := f.windows.Open(geom(2000, 100, 1200, 900), "https://b1.example", "https://b2.example")
	onA := f.windows.Open(geom(100, 50, 800, 600), "https://a1.example", "https://a2.example")
	require.NoError(t, f.windows.RemoveWindow(ctx, onB))
	require.NoError(t, f.windows.RemoveWindow(ctx, onA))

	rec, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Windows, 2)

	initial := f.windows.Open(platform.Geometry{}, platformtest.BlankURL)

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 2)
	assert.Empty(t, rep.Failed)
	assert.Equal(t, 1, rep.ClosedInitial)
	assert.True(t, rep.Cleared)
	assert.False(t, f.orch.Restoring())

	// Left-most display first.
	assert.Equal(t, onA, rep.Restored[0].OriginalID)
	assert.Equal(t, "A", rep.Restored[0].DisplayID)
	assert.Equal(t, onB, rep.Restored[1].OriginalID)
	assert.Equal(t, "B", rep.Restored[1].DisplayID)

	first, ok := f.windows.Window(rep.Restored[0].WindowID)
	require.True(t, ok)
	assert.Equal(t, []string{"https://a1.example", "https://a2.example"}, tabURLs(first))
	assert.Equal(t, geom(100, 50, 800, 600), first.Geometry)
	assert.False(t, first.Focused)

	second, ok := f.windows.Window(rep.Restored[1].WindowID)
	require.True(t, ok)
	assert.Equal(t, []string{"https://b1.example", "https://b2.example"}, tabURLs(second))
	assert.Equal(t, geom(2000, 100, 1200, 900), second.Geometry)
	assert.True(t, second.Focused, "only the last restored window is focused")

	_, ok = f.windows.Window(initial)
	assert.False(t, ok, "initial window is closed")

	for _, opts := range f.windows.Created {
		assert.False(t, opts.Focused)
		assert.Equal(t, platform.StateNormal, opts.State)
	}

	rec, err = f.store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "store is cleared and closing the initial window did not re-save")
}

func TestRestore_ReTopology(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	bBounds := displayB.Bounds
	f.save(t, session.WindowSnapshot{
		OriginalID:    5,
		Geometry:      geom(2000, 100, 800, 600),
		State:         platform.StateNormal,
		DisplayID:     "B",
		DisplayBounds: &bBounds,
		Tabs:          []session.TabSnapshot{{URL: "https://b.example"}},
	})

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	assert.Equal(t, "A", rep.Restored[0].DisplayID)

	w, ok := f.windows.Window(rep.Restored[0].WindowID)
	require.True(t, ok)
	assert.True(t, displayA.Bounds.Contains(*w.Left, *w.Top))
	assert.Equal(t, geom(80, 100, 800, 600), w.Geometry)
}

func TestRestore_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	aBounds := displayA.Bounds
	var snaps []session.WindowSnapshot
	for i := 1; i <= 3; i++ {
		snaps = append(snaps, session.WindowSnapshot{
			OriginalID:    platform.WindowID(i),
			Geometry:      geom(100*i, 100, 800, 600),
			DisplayID:     "A",
			DisplayBounds: &aBounds,
			Tabs:          []session.TabSnapshot{{URL: "https://example.com"}},
		})
	}
	f.save(t, snaps...)
	f.windows.FailCreateWindow = func(call int) error {
		if call == 2 {
			return errors.New("boom")
		}
		return nil
	}

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 2)
	assert.Equal(t, platform.WindowID(1), rep.Restored[0].OriginalID)
	assert.Equal(t, platform.WindowID(3), rep.Restored[1].OriginalID)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, platform.WindowID(2), rep.Failed[0].OriginalID)
	assert.True(t, rep.Cleared)

	rec, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRestore_NothingCreatedKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t, session.WindowSnapshot{OriginalID: 1, Tabs: []session.TabSnapshot{{URL: "x"}}})
	initial := f.windows.Open(platform.Geometry{}, platformtest.BlankURL)
	f.windows.FailCreateWindow = func(int) error { return errors.New("boom") }

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Restored)
	assert.False(t, rep.Cleared)

	_, ok := f.windows.Window(initial)
	assert.True(t, ok, "initial windows are kept when nothing was restored")
	rec, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRestore_EmptyStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	initial := f.windows.Open(platform.Geometry{}, platformtest.BlankURL)

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Restored)
	assert.Empty(t, f.windows.Created)
	_, ok := f.windows.Window(initial)
	assert.True(t, ok)
	assert.False(t, f.orch.Restoring())
}

func TestRestore_Subset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t,
		session.WindowSnapshot{OriginalID: 1, Tabs: []session.TabSnapshot{{URL: "one"}}},
		session.WindowSnapshot{OriginalID: 2, Tabs: []session.TabSnapshot{{URL: "two"}}},
		session.WindowSnapshot{OriginalID: 3},
	)

	rep, err := f.orch.Restore(ctx, []platform.WindowID{2, 3})
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	assert.Equal(t, platform.WindowID(2), rep.Restored[0].OriginalID)
	assert.Equal(t, 1, rep.Skipped, "windows without tabs are skipped")
}

func TestRestore_TabsAndState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t, session.WindowSnapshot{
		OriginalID: 1,
		State:      platform.StateMaximized,
		Tabs: []session.TabSnapshot{
			{URL: "https://pinned.example", Pinned: true},
			{URL: "https://active.example", Active: true},
			{URL: "https://broken.example"},
		},
	})
	f.windows.FailCreateTab = func(url string) error {
		if url == "https://broken.example" {
			return errors.New("bad url")
		}
		return nil
	}

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	assert.Equal(t, 2, rep.Restored[0].Tabs)

	w, ok := f.windows.Window(rep.Restored[0].WindowID)
	require.True(t, ok)
	require.Len(t, w.Tabs, 2, "blank tab removed, failed tab skipped")
	assert.True(t, w.Tabs[0].Pinned)
	assert.True(t, w.Tabs[1].Active)
	assert.Equal(t, platform.StateMaximized, w.State)
	assert.True(t, w.Focused)
}

func TestRestore_BlankTabKeptWhenNoTabCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t, session.WindowSnapshot{OriginalID: 1, Tabs: []session.TabSnapshot{{URL: "bad"}}})
	f.windows.FailCreateTab = func(string) error { return errors.New("bad url") }

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	w, ok := f.windows.Window(rep.Restored[0].WindowID)
	require.True(t, ok)
	assert.Equal(t, []string{platformtest.BlankURL}, tabURLs(w))
}

func TestRestore_ReentrantCallsAreDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t, session.WindowSnapshot{OriginalID: 1, Tabs: []session.TabSnapshot{{URL: "x"}}})

	var nestedErr error
	var nestedCapture capture.Outcome
	called := false
	f.windows.BeforeCreateWindow = func() {
		if called {
			return
		}
		called = true
		assert.True(t, f.orch.Restoring())
		_, nestedErr = f.orch.Restore(ctx, nil)
		nestedCapture = f.ctrl.Capture(ctx).Outcome
	}

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, rep.Restored, 1)
	assert.ErrorIs(t, nestedErr, ErrRestoreInProgress)
	assert.Equal(t, capture.Ignored, nestedCapture)
	assert.Len(t, f.windows.Created, 1)
	assert.False(t, f.orch.Restoring())
}

func TestRestore_PanicReleasesGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.save(t, session.WindowSnapshot{OriginalID: 1, Tabs: []session.TabSnapshot{{URL: "x"}}})
	f.windows.BeforeCreateWindow = func() { panic("host crashed") }

	_, err := f.orch.Restore(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host crashed")
	assert.False(t, f.orch.Restoring())
}

func TestRestore_DisplayFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, displayA)
	f.displays.Fail(errors.New("x server gone"))
	f.save(t, session.WindowSnapshot{OriginalID: 1, DisplayID: "A", Tabs: []session.TabSnapshot{{URL: "x"}}})

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	assert.Equal(t, display.Synthetic.ID, rep.Restored[0].DisplayID)
}

func TestRestore_DisplayUnavailableUsesSynthetic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.displays.Fail(platform.ErrDisplaysUnavailable)
	f.save(t, session.WindowSnapshot{OriginalID: 1, DisplayBounds: rectPtr(displayB.Bounds), Tabs: []session.TabSnapshot{{URL: "x"}}})

	rep, err := f.orch.Restore(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rep.Restored, 1)
	assert.Equal(t, "primary", rep.Restored[0].DisplayID)
}
