//go:build !linux

package platform

import "context"

// X11Displays is unavailable outside Linux; Displays always reports
// ErrDisplaysUnavailable so callers use the synthetic display.
type X11Displays struct{}

var _ DisplayService = (*X11Displays)(nil)

// NewX11Displays creates a display service that reports no capability.
func NewX11Displays() *X11Displays {
	return &X11Displays{}
}

// Displays always returns ErrDisplaysUnavailable.
func (d *X11Displays) Displays(ctx context.Context) ([]Display, error) {
	return nil, ErrDisplaysUnavailable
}

// Disconnect is a no-op.
func (d *X11Displays) Disconnect() {}
