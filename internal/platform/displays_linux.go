//go:build linux

package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexkorol/last-closed-tabgroups/internal/x11"
)

// X11Displays enumerates displays through XRandR. The X connection is opened
// lazily so the daemon can start before the display server is reachable.
type X11Displays struct {
	mu   sync.Mutex
	conn *x11.Connection
}

var _ DisplayService = (*X11Displays)(nil)

// NewX11Displays creates an XRandR-backed display service.
func NewX11Displays() *X11Displays {
	return &X11Displays{}
}

// Displays returns all active displays. When no X server is reachable it
// returns ErrDisplaysUnavailable.
func (d *X11Displays) Displays(ctx context.Context) ([]Display, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := d.connection()
	if err != nil {
		return nil, err
	}

	monitors, err := conn.GetMonitors()
	if err != nil {
		return nil, err
	}

	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		displays = append(displays, displayFromMonitor(m))
	}
	return displays, nil
}

// Disconnect closes the underlying X11 connection, if open.
func (d *X11Displays) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *X11Displays) connection() (*x11.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisplaysUnavailable, err)
	}
	d.conn = conn
	return conn, nil
}

func displayFromMonitor(m x11.Monitor) Display {
	return Display{
		ID:   m.Name,
		Name: m.Name,
		Bounds: Rect{
			Left:   m.X,
			Top:    m.Y,
			Width:  m.Width,
			Height: m.Height,
		},
	}
}
