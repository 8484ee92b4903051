// Package display resolves which physical display a window belongs to.
package display

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// Synthetic is returned when the host cannot enumerate displays.
var Synthetic = platform.Display{
	ID:     "primary",
	Name:   "primary",
	Bounds: platform.Rect{Left: 0, Top: 0, Width: 1920, Height: 1080},
}

// Directory lists the current displays ordered left to right.
type Directory struct {
	source platform.DisplayService
}

// NewDirectory wraps a display service. A nil source always yields the
// synthetic display.
func NewDirectory(source platform.DisplayService) *Directory {
	return &Directory{source: source}
}

// List returns the current displays sorted ascending by left edge. It never
// returns an empty slice without an error.
func (d *Directory) List(ctx context.Context) ([]platform.Display, error) {
	if d == nil || d.source == nil {
		return []platform.Display{Synthetic}, nil
	}

	displays, err := d.source.Displays(ctx)
	if err != nil {
		if errors.Is(err, platform.ErrDisplaysUnavailable) {
			return []platform.Display{Synthetic}, nil
		}
		return nil, fmt.Errorf("enumerate displays: %w", err)
	}
	if len(displays) == 0 {
		return []platform.Display{Synthetic}, nil
	}

	out := make([]platform.Display, len(displays))
	copy(out, displays)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Bounds, out[j].Bounds
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.Top < b.Top
	})
	return out, nil
}

// ByID returns the display with the given id.
func ByID(displays []platform.Display, id string) (platform.Display, bool) {
	if id == "" {
		return platform.Display{}, false
	}
	for _, d := range displays {
		if d.ID == id {
			return d, true
		}
	}
	return platform.Display{}, false
}
