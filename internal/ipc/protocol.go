package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload       CommandType = "RELOAD"
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandGetDisplays  CommandType = "GET_DISPLAYS"
	CommandReopen       CommandType = "REOPEN"
	CommandListSaved    CommandType = "LIST_SAVED"
	CommandListOpen     CommandType = "LIST_OPEN"
	CommandClearSaved   CommandType = "CLEAR_SAVED"
	CommandSaveAndClose CommandType = "SAVE_AND_CLOSE"
)

// Response statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
	// StatusBusy means a restore is already running and the request was
	// dropped.
	StatusBusy = "BUSY"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK", "ERROR" or "BUSY"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	DaemonRunning bool       `json:"daemon_running"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Connected     bool       `json:"connected"`
	Browser       string     `json:"browser,omitempty"`
	OpenWindows   int        `json:"open_windows"`
	Restoring     bool       `json:"restoring"`
	SavedWindows  int        `json:"saved_windows"`
	SavedAt       *time.Time `json:"saved_at,omitempty"`
}

// DisplaysData represents the data returned by GET_DISPLAYS
type DisplaysData struct {
	Displays []platform.Display `json:"displays"`
}

// SavedData represents the data returned by LIST_SAVED. Windows is empty
// when nothing is saved.
type SavedData struct {
	ID      string                   `json:"id,omitempty"`
	SavedAt *time.Time               `json:"saved_at,omitempty"`
	Windows []session.WindowSnapshot `json:"windows"`
}

// OpenWindowsData represents the data returned by LIST_OPEN. OriginalID
// holds the live browser window id.
type OpenWindowsData struct {
	Windows []session.WindowSnapshot `json:"windows"`
}

// WindowsPayload selects windows by id for REOPEN and SAVE_AND_CLOSE. An
// empty list means all windows.
type WindowsPayload struct {
	WindowIDs []platform.WindowID `json:"window_ids,omitempty"`
}

// SaveAndCloseData represents the data returned by SAVE_AND_CLOSE
type SaveAndCloseData struct {
	Outcome string `json:"outcome"`
	Windows int    `json:"windows"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// NewBusyResponse reports a dropped request.
func NewBusyResponse(errMsg string) *Response {
	return &Response{
		Status: StatusBusy,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
