package platformtest

import (
	"context"
	"sync"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// Displays is a settable platform.DisplayService.
type Displays struct {
	mu   sync.Mutex
	list []platform.Display
	err  error
}

var _ platform.DisplayService = (*Displays)(nil)

// NewDisplays returns a service reporting the given displays.
func NewDisplays(displays ...platform.Display) *Displays {
	return &Displays{list: displays}
}

// Set replaces the reported topology.
func (d *Displays) Set(displays ...platform.Display) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = displays
	d.err = nil
}

// Fail makes every subsequent Displays call return err.
func (d *Displays) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *Displays) Displays(ctx context.Context) ([]platform.Display, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]platform.Display(nil), d.list...), nil
}

// Display is a convenience constructor.
func Display(id string, left, top, width, height int) platform.Display {
	return platform.Display{
		ID:     id,
		Name:   id,
		Bounds: platform.Rect{Left: left, Top: top, Width: width, Height: height},
	}
}
