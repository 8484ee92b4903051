package daemon

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alexkorol/last-closed-tabgroups/internal/capture"
	"github.com/alexkorol/last-closed-tabgroups/internal/display"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// guardFunc adapts a function to capture.Guard.
type guardFunc func() bool

func (f guardFunc) Restoring() bool { return f() }

// StateSynchronizer keeps the saved session in step with one browser
// connection: closes feed the capture controller, and restores run through
// the orchestrator that owns the re-entrancy guard.
type StateSynchronizer struct {
	browser Browser
	capture *capture.Controller
	restore *restore.Orchestrator
	logger  *slog.Logger
}

// NewStateSynchronizer wires capture and restore to b and subscribes to
// window removal. suppress reports whether closes should be ignored
// regardless of restore state (daemon shutdown).
func NewStateSynchronizer(ctx context.Context, b Browser, displays *display.Directory, store *session.Store, placement restore.Placement, suppress func() bool, logger *slog.Logger) *StateSynchronizer {
	orch := restore.NewOrchestrator(b, displays, store, placement, logger)
	guard := guardFunc(func() bool {
		return orch.Restoring() || (suppress != nil && suppress())
	})
	s := &StateSynchronizer{
		browser: b,
		capture: capture.NewController(b, displays, store, guard, logger),
		restore: orch,
		logger:  logger,
	}
	b.OnWindowRemoved(func(id platform.WindowID) {
		s.HandleWindowClosed(ctx, id)
	})
	return s
}

// HandleWindowClosed is called when a browser window is destroyed.
func (s *StateSynchronizer) HandleWindowClosed(ctx context.Context, id platform.WindowID) {
	s.capture.HandleWindowRemoved(ctx, id)
}

// StartupRestore restores the saved session on a fresh browser. A browser
// that already shows real pages was not just launched, so its windows are
// left alone.
func (s *StateSynchronizer) StartupRestore(ctx context.Context) {
	open, err := s.browser.ListWindows(ctx)
	if err != nil {
		s.logger.Warn("startup restore: failed to list windows", "error", err)
		return
	}
	if !freshStart(open) {
		s.logger.Info("browser already has open pages, skipping startup restore", "windows", len(open))
		return
	}

	rep, err := s.restore.Restore(ctx, nil)
	if err != nil {
		s.logger.Error("startup restore failed", "error", err)
		return
	}
	if rep.RecordID == "" {
		return
	}
	s.logger.Info("startup restore finished",
		"record", rep.RecordID,
		"restored", len(rep.Restored),
		"failed", len(rep.Failed),
		"skipped", rep.Skipped,
		"cleared", rep.Cleared)
}

var startPages = []string{
	"about:blank",
	"about:newtab",
	"chrome://newtab",
	"chrome://new-tab-page",
	"chrome-search://local-ntp",
	"edge://newtab",
	"brave://newtab",
}

func freshStart(windows []platform.Window) bool {
	for _, w := range windows {
		for _, tab := range w.Tabs {
			if !isStartPage(tab.URL) {
				return false
			}
		}
	}
	return true
}

func isStartPage(url string) bool {
	if url == "" {
		return true
	}
	for _, p := range startPages {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
