package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexkorol/last-closed-tabgroups/internal/ipc"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
)

const (
	ServerName    = "lastclosed"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools use.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	GetDisplays() (*ipc.DisplaysData, error)
	ListSaved() (*ipc.SavedData, error)
	ListOpen() (*ipc.OpenWindowsData, error)
	Reopen(ids []platform.WindowID) (*restore.Report, error)
	ClearSaved() error
	SaveAndClose(ids []platform.WindowID) (*ipc.SaveAndCloseData, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server exposing the saved browser session.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
}

// NewServer creates a new MCP server that forwards to the running daemon.
func NewServer(daemon Daemon) *Server {
	s := &Server{daemon: daemon}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_saved_windows",
		Description: "List the browser windows saved when the last window was closed, with their tabs and the display each was on.",
	}, s.handleListSaved)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "restore_windows",
		Description: "Reopen saved windows on their original displays. Pass window_ids (from list_saved_windows) to restore a subset; omit to restore all. The saved session is cleared once at least one window was recreated.",
	}, s.handleRestore)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "clear_saved_session",
		Description: "Discard the saved session without restoring it.",
	}, s.handleClearSaved)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_open_windows",
		Description: "List the browser's open windows with their live window ids, tabs and the display each is on.",
	}, s.handleListOpen)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "save_and_close_windows",
		Description: "Save open browser windows as the session and close them. Pass window_ids (from list_open_windows) to select windows; omit to save and close all.",
	}, s.handleSaveAndClose)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_displays",
		Description: "List the connected displays ordered left to right, with their bounds in desktop coordinates.",
	}, s.handleListDisplays)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "status",
		Description: "Report whether the daemon is connected to the browser, how many windows are open and what is saved.",
	}, s.handleStatus)
}
