package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/alexkorol/last-closed-tabgroups/internal/capture"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// Service is what the daemon exposes over IPC.
type Service interface {
	Status(ctx context.Context) StatusData
	Displays(ctx context.Context) ([]platform.Display, error)
	Restore(ctx context.Context, ids []platform.WindowID) (restore.Report, error)
	Saved(ctx context.Context) (*session.Record, error)
	OpenWindows(ctx context.Context) ([]session.WindowSnapshot, error)
	ClearSaved(ctx context.Context) error
	SaveAndClose(ctx context.Context, ids []platform.WindowID) (capture.Result, error)
	Reload() error
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	svc          Service
	ctx          context.Context
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server on socketPath, replacing a stale
// socket file.
func NewServer(socketPath string, svc Service) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("IPC socket path is empty")
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		svc:        svc,
		ctx:        context.Background(),
	}, nil
}

// Start begins listening for IPC connections. Requests run under ctx.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener
	s.ctx = ctx

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("IPC server listening on %s", s.socketPath)

	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			log.Printf("IPC accept error: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		log.Printf("IPC read error: %v", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		log.Printf("Failed to marshal response: %v", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandGetDisplays:
		return s.handleGetDisplays()
	case CommandReopen:
		return s.handleReopen(req.Payload)
	case CommandListSaved:
		return s.handleListSaved()
	case CommandListOpen:
		return s.handleListOpen()
	case CommandClearSaved:
		return s.handleClearSaved()
	case CommandSaveAndClose:
		return s.handleSaveAndClose(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleReload() *Response {
	log.Println("IPC: Received RELOAD command")
	if err := s.svc.Reload(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleGetStatus() *Response {
	resp, _ := NewOKResponse(s.svc.Status(s.ctx))
	return resp
}

func (s *Server) handleGetDisplays() *Response {
	displays, err := s.svc.Displays(s.ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to get displays: %v", err))
	}
	resp, _ := NewOKResponse(DisplaysData{Displays: displays})
	return resp
}

func (s *Server) handleReopen(payload json.RawMessage) *Response {
	var req WindowsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid reopen payload: %v", err))
		}
	}

	log.Printf("IPC: Reopen %d window(s) (0 = all)", len(req.WindowIDs))

	report, err := s.svc.Restore(s.ctx, req.WindowIDs)
	if errors.Is(err, restore.ErrRestoreInProgress) {
		return NewBusyResponse(err.Error())
	}
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to restore: %v", err))
	}
	resp, err := NewOKResponse(report)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleListSaved() *Response {
	rec, err := s.svc.Saved(s.ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to load saved session: %v", err))
	}
	data := SavedData{Windows: []session.WindowSnapshot{}}
	if rec != nil {
		data.ID = rec.ID
		data.Windows = rec.Windows
		if !rec.SavedAt.IsZero() {
			savedAt := rec.SavedAt
			data.SavedAt = &savedAt
		}
	}
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleListOpen() *Response {
	windows, err := s.svc.OpenWindows(s.ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to list open windows: %v", err))
	}
	if windows == nil {
		windows = []session.WindowSnapshot{}
	}
	resp, err := NewOKResponse(OpenWindowsData{Windows: windows})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleClearSaved() *Response {
	if err := s.svc.ClearSaved(s.ctx); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to clear saved session: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSaveAndClose(payload json.RawMessage) *Response {
	var req WindowsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid save payload: %v", err))
		}
	}

	res, err := s.svc.SaveAndClose(s.ctx, req.WindowIDs)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to save windows: %v", err))
	}
	if res.Outcome == capture.Ignored {
		return NewBusyResponse("a restore or close is already in progress")
	}
	resp, _ := NewOKResponse(SaveAndCloseData{Outcome: res.Outcome.String(), Windows: res.Windows})
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
