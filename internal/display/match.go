package display

import (
	"math"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// Point is a position in virtual desktop coordinates.
type Point struct {
	X int
	Y int
}

// ReferencePoint returns the point used to associate a window with a
// display: the window center, or the top-left corner when the size is
// unknown. ok is false when the geometry has no position.
func ReferencePoint(g platform.Geometry) (Point, bool) {
	if !g.HasPosition() {
		return Point{}, false
	}
	p := Point{X: *g.Left, Y: *g.Top}
	if g.HasSize() {
		p.X += *g.Width / 2
		p.Y += *g.Height / 2
	}
	return p, true
}

// Match returns the first display (in slice order) containing p. When none
// contains it, the display whose center is nearest to p is returned, with
// ties going to the earliest display. ok is false only when displays is
// empty.
func Match(p Point, displays []platform.Display) (platform.Display, bool) {
	if len(displays) == 0 {
		return platform.Display{}, false
	}

	for _, d := range displays {
		if d.Bounds.Contains(p.X, p.Y) {
			return d, true
		}
	}

	best := 0
	bestDist := math.Inf(1)
	for i, d := range displays {
		cx, cy := d.Bounds.Center()
		dist := math.Hypot(float64(p.X-cx), float64(p.Y-cy))
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return displays[best], true
}

// MatchGeometry matches a window geometry. ok is false when the geometry
// has no position or displays is empty.
func MatchGeometry(g platform.Geometry, displays []platform.Display) (platform.Display, bool) {
	p, ok := ReferencePoint(g)
	if !ok {
		return platform.Display{}, false
	}
	return Match(p, displays)
}
