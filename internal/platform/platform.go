package platform

import (
	"context"
	"errors"
	"time"
)

// ErrDisplaysUnavailable reports that the host has no display enumeration
// capability (no X server, headless session). Callers fall back to a single
// synthetic display.
var ErrDisplaysUnavailable = errors.New("display enumeration unavailable")

// WindowID identifies a browser window. IDs are assigned by the host and are
// not stable across browser restarts.
type WindowID int64

// TabID identifies a tab within the host.
type TabID string

// Rect describes a rectangular region in virtual desktop coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether (x, y) lies inside r using half-open intervals.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Left+r.Width && y >= r.Top && y < r.Top+r.Height
}

// Center returns the geometric center of r.
func (r Rect) Center() (x, y int) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Display describes one physical output and its bounds.
type Display struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Bounds Rect   `json:"bounds"`
}

// WindowState is the presentation state of a window.
type WindowState string

const (
	StateNormal     WindowState = "normal"
	StateMaximized  WindowState = "maximized"
	StateMinimized  WindowState = "minimized"
	StateFullscreen WindowState = "fullscreen"
)

// Valid reports whether s is one of the known states.
func (s WindowState) Valid() bool {
	switch s {
	case StateNormal, StateMaximized, StateMinimized, StateFullscreen:
		return true
	}
	return false
}

// OrNormal returns s, or StateNormal when s is empty or unknown.
func (s WindowState) OrNormal() WindowState {
	if s.Valid() {
		return s
	}
	return StateNormal
}

// Geometry is a window position and size as reported by the host. Any field
// may be absent.
type Geometry struct {
	Left   *int `json:"left,omitempty"`
	Top    *int `json:"top,omitempty"`
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// GeometryFromRect returns a fully populated Geometry.
func GeometryFromRect(r Rect) Geometry {
	left, top, width, height := r.Left, r.Top, r.Width, r.Height
	return Geometry{Left: &left, Top: &top, Width: &width, Height: &height}
}

// HasPosition reports whether both left and top are known.
func (g Geometry) HasPosition() bool {
	return g.Left != nil && g.Top != nil
}

// HasSize reports whether both width and height are known and positive.
func (g Geometry) HasSize() bool {
	return g.Width != nil && g.Height != nil && *g.Width > 0 && *g.Height > 0
}

// Empty reports whether no geometry was reported at all.
func (g Geometry) Empty() bool {
	return g.Left == nil && g.Top == nil && g.Width == nil && g.Height == nil
}

// Tab is one tab of a window.
type Tab struct {
	ID     TabID  `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// Window contains metadata, geometry and (when populated) tabs for a
// top-level browser window.
type Window struct {
	ID      WindowID    `json:"id"`
	State   WindowState `json:"state,omitempty"`
	Focused bool        `json:"focused,omitempty"`
	Tabs    []Tab       `json:"tabs,omitempty"`
	Geometry
}

// ClosedSession is one entry of the host's recently-closed list. Tab-only
// closures carry Tab and no Window.
type ClosedSession struct {
	Window   *Window   `json:"window,omitempty"`
	Tab      *Tab      `json:"tab,omitempty"`
	ClosedAt time.Time `json:"closed_at"`
}

// CreateWindowOptions describes a window to create.
type CreateWindowOptions struct {
	Bounds  *Rect
	State   WindowState
	Focused bool
}

// CreateTabOptions describes a tab to create.
type CreateTabOptions struct {
	URL    string
	Pinned bool
	Active bool
}

// UpdateWindowOptions changes a window's state and/or focus. Nil fields are
// left untouched.
type UpdateWindowOptions struct {
	State   *WindowState
	Focused *bool
}

// WindowService abstracts the browser's window and tab operations.
type WindowService interface {
	ListWindows(ctx context.Context) ([]Window, error)
	CreateWindow(ctx context.Context, opts CreateWindowOptions) (Window, error)
	CreateTab(ctx context.Context, windowID WindowID, opts CreateTabOptions) (Tab, error)
	ListTabs(ctx context.Context, windowID WindowID) ([]Tab, error)
	RemoveTab(ctx context.Context, tabID TabID) error
	UpdateWindow(ctx context.Context, windowID WindowID, opts UpdateWindowOptions) error
	RemoveWindow(ctx context.Context, windowID WindowID) error
	// OnWindowRemoved registers fn to be called after a window closes.
	OnWindowRemoved(fn func(WindowID))
	// RecentlyClosed returns closed windows and tabs, newest first.
	RecentlyClosed(ctx context.Context) ([]ClosedSession, error)
}

// DisplayService enumerates physical displays.
type DisplayService interface {
	Displays(ctx context.Context) ([]Display, error)
}
