package restore

import (
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// Placement tunes where restored windows are put on their target display.
type Placement struct {
	// MinVisible is how many pixels of a window must stay on the display
	// horizontally and vertically.
	MinVisible int
	// DefaultSizePercent sizes windows that saved no size, relative to the
	// target display.
	DefaultSizePercent int
	// MaxWidth and MaxHeight cap the default size. Zero means no cap.
	MaxWidth  int
	MaxHeight int
}

// DefaultPlacement returns the stock placement settings.
func DefaultPlacement() Placement {
	return Placement{
		MinVisible:         100,
		DefaultSizePercent: 80,
		MaxWidth:           1920,
		MaxHeight:          1200,
	}
}

// Bounds computes the bounds for snap on target.
func (p Placement) Bounds(snap session.WindowSnapshot, target platform.Display) platform.Rect {
	tb := target.Bounds
	g := snap.Geometry

	width, height := p.defaultSize(tb)
	if g.HasSize() {
		width, height = *g.Width, *g.Height
	}
	width = clamp(width, 1, max(tb.Width, 1))
	height = clamp(height, 1, max(tb.Height, 1))

	if !g.HasPosition() {
		return platform.Rect{
			Left:   tb.Left + (tb.Width-width)/2,
			Top:    tb.Top + (tb.Height-height)/2,
			Width:  width,
			Height: height,
		}
	}

	left, top := *g.Left, *g.Top
	if sb := snap.DisplayBounds; sb != nil && *sb != tb {
		left = tb.Left + (left - sb.Left)
		top = tb.Top + (top - sb.Top)
	}

	visW := min(p.MinVisible, width)
	visH := min(p.MinVisible, height)
	left = clamp(left, tb.Left-width+visW, tb.Left+tb.Width-visW)
	top = clamp(top, tb.Top, tb.Top+tb.Height-visH)

	return platform.Rect{Left: left, Top: top, Width: width, Height: height}
}

func (p Placement) defaultSize(tb platform.Rect) (int, int) {
	pct := p.DefaultSizePercent
	if pct <= 0 || pct > 100 {
		pct = 80
	}
	w := tb.Width * pct / 100
	h := tb.Height * pct / 100
	if p.MaxWidth > 0 {
		w = min(w, p.MaxWidth)
	}
	if p.MaxHeight > 0 {
		h = min(h, p.MaxHeight)
	}
	return w, h
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
