package mcp

import "time"

// ListSavedInput is the input for the list_saved_windows tool.
type ListSavedInput struct{}

// TabInfo describes one tab.
type TabInfo struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// WindowInfo describes one window. WindowID is the id the window had when
// it was saved, or its live id for open windows.
type WindowInfo struct {
	WindowID  int64      `json:"window_id"`
	Label     string     `json:"label"`
	State     string     `json:"state,omitempty"`
	DisplayID string     `json:"display_id,omitempty"`
	Tabs      []TabInfo  `json:"tabs"`
}

// ListSavedOutput is the output for the list_saved_windows tool.
type ListSavedOutput struct {
	SessionID string       `json:"session_id,omitempty"`
	SavedAt   *time.Time   `json:"saved_at,omitempty"`
	Windows   []WindowInfo `json:"windows"`
}

// ListOpenInput is the input for the list_open_windows tool.
type ListOpenInput struct{}

// ListOpenOutput is the output for the list_open_windows tool.
type ListOpenOutput struct {
	Windows []WindowInfo `json:"windows"`
}

// WindowsInput selects windows by id.
type WindowsInput struct {
	WindowIDs []int64 `json:"window_ids,omitempty" jsonschema:"Window ids to act on; omit for all windows"`
}

// RestoredWindow describes one recreated window.
type RestoredWindow struct {
	SavedWindowID int64  `json:"saved_window_id"`
	NewWindowID   int64  `json:"new_window_id"`
	DisplayID     string `json:"display_id"`
	Tabs          int    `json:"tabs"`
}

// FailedWindow describes one saved window that could not be recreated.
type FailedWindow struct {
	SavedWindowID int64  `json:"saved_window_id"`
	Error         string `json:"error"`
}

// RestoreOutput is the output for the restore_windows tool.
type RestoreOutput struct {
	Restored []RestoredWindow `json:"restored"`
	Failed   []FailedWindow   `json:"failed,omitempty"`
	Skipped  int              `json:"skipped,omitempty"`
	Cleared  bool             `json:"cleared"`
	Message  string           `json:"message,omitempty"`
}

// ClearSavedInput is the input for the clear_saved_session tool.
type ClearSavedInput struct{}

// ClearSavedOutput is the output for the clear_saved_session tool.
type ClearSavedOutput struct {
	Cleared bool `json:"cleared"`
}

// SaveAndCloseOutput is the output for the save_and_close_windows tool.
type SaveAndCloseOutput struct {
	Outcome string `json:"outcome"`
	Windows int    `json:"windows"`
}

// ListDisplaysInput is the input for the list_displays tool.
type ListDisplaysInput struct{}

// DisplayInfo describes one display.
type DisplayInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ListDisplaysOutput is the output for the list_displays tool.
type ListDisplaysOutput struct {
	Displays []DisplayInfo `json:"displays"`
}

// StatusInput is the input for the status tool.
type StatusInput struct{}

// StatusOutput is the output for the status tool.
type StatusOutput struct {
	Connected     bool       `json:"connected"`
	Browser       string     `json:"browser,omitempty"`
	OpenWindows   int        `json:"open_windows"`
	Restoring     bool       `json:"restoring"`
	SavedWindows  int        `json:"saved_windows"`
	SavedAt       *time.Time `json:"saved_at,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
}
