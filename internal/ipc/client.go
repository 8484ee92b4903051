package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
	"github.com/alexkorol/last-closed-tabgroups/internal/runtimepath"
)

// ErrBusy is returned when the daemon dropped a request because a restore
// was already running.
var ErrBusy = errors.New("daemon busy: restore already in progress")

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientWithSocket(socketPath)
}

// NewClientWithSocket creates a client for an explicit socket path.
func NewClientWithSocket(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.deadline(req.Command)))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch resp.Status {
	case StatusError:
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	case StatusBusy:
		return nil, ErrBusy
	}

	return &resp, nil
}

// deadline is longer for commands that drive the browser.
func (c *Client) deadline(cmd CommandType) time.Duration {
	switch cmd {
	case CommandReopen, CommandSaveAndClose:
		return 2 * time.Minute
	default:
		return c.timeout
	}
}

func windowsPayload(ids []platform.WindowID) (json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(WindowsPayload{WindowIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal window payload: %w", err)
	}
	return payload, nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	_, err := c.sendRequest(&Request{Command: CommandReload})
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetStatus})
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}

// GetDisplays retrieves the daemon's view of the displays, left to right.
func (c *Client) GetDisplays() (*DisplaysData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetDisplays})
	if err != nil {
		return nil, err
	}

	var data DisplaysData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse displays data: %w", err)
	}
	return &data, nil
}

// Reopen restores the saved windows with the given original ids, or all of
// them when ids is empty.
func (c *Client) Reopen(ids []platform.WindowID) (*restore.Report, error) {
	payload, err := windowsPayload(ids)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(&Request{Command: CommandReopen, Payload: payload})
	if err != nil {
		return nil, err
	}

	var report restore.Report
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse restore report: %w", err)
		}
	}
	return &report, nil
}

// ListSaved retrieves the saved session.
func (c *Client) ListSaved() (*SavedData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandListSaved})
	if err != nil {
		return nil, err
	}

	var data SavedData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse saved session: %w", err)
	}
	return &data, nil
}

// ListOpen retrieves the browser's open windows.
func (c *Client) ListOpen() (*OpenWindowsData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandListOpen})
	if err != nil {
		return nil, err
	}

	var data OpenWindowsData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse open windows: %w", err)
	}
	return &data, nil
}

// ClearSaved discards the saved session.
func (c *Client) ClearSaved() error {
	_, err := c.sendRequest(&Request{Command: CommandClearSaved})
	return err
}

// SaveAndClose saves the given open windows (all when ids is empty) and
// closes them.
func (c *Client) SaveAndClose(ids []platform.WindowID) (*SaveAndCloseData, error) {
	payload, err := windowsPayload(ids)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(&Request{Command: CommandSaveAndClose, Payload: payload})
	if err != nil {
		return nil, err
	}

	var data SaveAndCloseData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse save result: %w", err)
	}
	return &data, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
