package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexkorol/last-closed-tabgroups/internal/ipc"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

func (s *Server) handleListSaved(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListSavedInput) (*mcpsdk.CallToolResult, ListSavedOutput, error) {
	data, err := s.daemon.ListSaved()
	if err != nil {
		return nil, ListSavedOutput{}, fmt.Errorf("list saved windows: %w", err)
	}

	out := ListSavedOutput{
		SessionID: data.ID,
		SavedAt:   data.SavedAt,
		Windows:   make([]WindowInfo, 0, len(data.Windows)),
	}
	for _, w := range data.Windows {
		out.Windows = append(out.Windows, windowInfo(w))
	}
	return nil, out, nil
}

func (s *Server) handleListOpen(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListOpenInput) (*mcpsdk.CallToolResult, ListOpenOutput, error) {
	data, err := s.daemon.ListOpen()
	if err != nil {
		return nil, ListOpenOutput{}, fmt.Errorf("list open windows: %w", err)
	}
	out := ListOpenOutput{Windows: make([]WindowInfo, 0, len(data.Windows))}
	for _, w := range data.Windows {
		out.Windows = append(out.Windows, windowInfo(w))
	}
	return nil, out, nil
}

func windowInfo(w session.WindowSnapshot) WindowInfo {
	win := WindowInfo{
		WindowID:  int64(w.OriginalID),
		Label:     w.Label(),
		State:     string(w.State),
		DisplayID: w.DisplayID,
		Tabs:      make([]TabInfo, 0, len(w.Tabs)),
	}
	for _, tab := range w.Tabs {
		win.Tabs = append(win.Tabs, TabInfo{URL: tab.URL, Title: tab.Title, Pinned: tab.Pinned, Active: tab.Active})
	}
	return win
}

func (s *Server) handleRestore(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowsInput) (*mcpsdk.CallToolResult, RestoreOutput, error) {
	report, err := s.daemon.Reopen(windowIDs(args.WindowIDs))
	if errors.Is(err, ipc.ErrBusy) {
		return nil, RestoreOutput{Restored: []RestoredWindow{}, Message: "a restore is already running; request dropped"}, nil
	}
	if err != nil {
		return nil, RestoreOutput{}, fmt.Errorf("restore windows: %w", err)
	}

	out := RestoreOutput{
		Restored: make([]RestoredWindow, 0, len(report.Restored)),
		Skipped:  report.Skipped,
		Cleared:  report.Cleared,
	}
	for _, r := range report.Restored {
		out.Restored = append(out.Restored, RestoredWindow{
			SavedWindowID: int64(r.OriginalID),
			NewWindowID:   int64(r.WindowID),
			DisplayID:     r.DisplayID,
			Tabs:          r.Tabs,
		})
	}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, FailedWindow{SavedWindowID: int64(f.OriginalID), Error: f.Error})
	}
	if report.RecordID == "" {
		out.Message = "nothing saved to restore"
	}
	return nil, out, nil
}

func (s *Server) handleClearSaved(_ context.Context, _ *mcpsdk.CallToolRequest, _ ClearSavedInput) (*mcpsdk.CallToolResult, ClearSavedOutput, error) {
	if err := s.daemon.ClearSaved(); err != nil {
		return nil, ClearSavedOutput{}, fmt.Errorf("clear saved session: %w", err)
	}
	return nil, ClearSavedOutput{Cleared: true}, nil
}

func (s *Server) handleSaveAndClose(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowsInput) (*mcpsdk.CallToolResult, SaveAndCloseOutput, error) {
	data, err := s.daemon.SaveAndClose(windowIDs(args.WindowIDs))
	if errors.Is(err, ipc.ErrBusy) {
		return nil, SaveAndCloseOutput{Outcome: "ignored"}, nil
	}
	if err != nil {
		return nil, SaveAndCloseOutput{}, fmt.Errorf("save and close windows: %w", err)
	}
	return nil, SaveAndCloseOutput{Outcome: data.Outcome, Windows: data.Windows}, nil
}

func (s *Server) handleListDisplays(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListDisplaysInput) (*mcpsdk.CallToolResult, ListDisplaysOutput, error) {
	data, err := s.daemon.GetDisplays()
	if err != nil {
		return nil, ListDisplaysOutput{}, fmt.Errorf("list displays: %w", err)
	}
	out := ListDisplaysOutput{Displays: make([]DisplayInfo, 0, len(data.Displays))}
	for _, d := range data.Displays {
		out.Displays = append(out.Displays, DisplayInfo{
			ID:     d.ID,
			Name:   d.Name,
			Left:   d.Bounds.Left,
			Top:    d.Bounds.Top,
			Width:  d.Bounds.Width,
			Height: d.Bounds.Height,
		})
	}
	return nil, out, nil
}

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("daemon status: %w", err)
	}
	return nil, StatusOutput{
		Connected:     st.Connected,
		Browser:       st.Browser,
		OpenWindows:   st.OpenWindows,
		Restoring:     st.Restoring,
		SavedWindows:  st.SavedWindows,
		SavedAt:       st.SavedAt,
		UptimeSeconds: st.UptimeSeconds,
	}, nil
}

func windowIDs(ids []int64) []platform.WindowID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]platform.WindowID, len(ids))
	for i, id := range ids {
		out[i] = platform.WindowID(id)
	}
	return out
}
