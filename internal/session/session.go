// Package session persists the single "last closed session" record.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexkorol/last-closed-tabgroups/internal/kv"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

const (
	KeyWindows          = "last_closed_windows"
	KeySaveTimestamp    = "last_save_timestamp"
	KeyInstalledVersion = "installed_version"
)

// TabSnapshot is one saved tab. Slice order is creation order.
type TabSnapshot struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// WindowSnapshot is one saved window together with the display it was on.
type WindowSnapshot struct {
	OriginalID    platform.WindowID    `json:"original_id"`
	Geometry      platform.Geometry    `json:"geometry"`
	State         platform.WindowState `json:"state"`
	DisplayID     string               `json:"display_id,omitempty"`
	DisplayBounds *platform.Rect       `json:"display_bounds,omitempty"`
	Tabs          []TabSnapshot        `json:"tabs"`
}

// Label returns a short human description: the first tab's title or URL and
// the tab count.
func (w WindowSnapshot) Label() string {
	if len(w.Tabs) == 0 {
		return fmt.Sprintf("window %d (empty)", w.OriginalID)
	}
	first := w.Tabs[0].Title
	if first == "" {
		first = w.Tabs[0].URL
	}
	if len(w.Tabs) == 1 {
		return first
	}
	return fmt.Sprintf("%s (+%d more tabs)", first, len(w.Tabs)-1)
}

// Record is the most recently captured set of windows.
type Record struct {
	ID      string           `json:"id"`
	Windows []WindowSnapshot `json:"windows"`
	SavedAt time.Time        `json:"-"`
}

// NewRecord returns a record with a fresh id.
func NewRecord(windows []WindowSnapshot, savedAt time.Time) *Record {
	return &Record{ID: uuid.NewString(), Windows: windows, SavedAt: savedAt}
}

// Store reads and writes the session record through a kv.Store.
type Store struct {
	kv kv.Store
}

// NewStore wraps a durable store.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Save overwrites any existing record in a single write.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("session record is nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	windows, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ts, err := json.Marshal(rec.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to encode timestamp: %w", err)
	}
	if err := s.kv.Set(ctx, map[string]json.RawMessage{
		KeyWindows:       windows,
		KeySaveTimestamp: ts,
	}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the saved record, or nil when nothing is saved.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	values, err := s.kv.Get(ctx, KeyWindows, KeySaveTimestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	raw, ok := values[KeyWindows]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if ts, ok := values[KeySaveTimestamp]; ok {
		var ms int64
		if err := json.Unmarshal(ts, &ms); err == nil && ms > 0 {
			rec.SavedAt = time.UnixMilli(ms)
		}
	}
	return &rec, nil
}

// Clear removes the record. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, KeyWindows, KeySaveTimestamp); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// InstalledVersion returns the version recorded by the last install hook.
func (s *Store) InstalledVersion(ctx context.Context) (string, error) {
	values, err := s.kv.Get(ctx, KeyInstalledVersion)
	if err != nil {
		return "", err
	}
	raw, ok := values[KeyInstalledVersion]
	if !ok {
		return "", nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("failed to parse installed version: %w", err)
	}
	return v, nil
}

// SetInstalledVersion records version.
func (s *Store) SetInstalledVersion(ctx context.Context, version string) error {
	raw, err := json.Marshal(version)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, map[string]json.RawMessage{KeyInstalledVersion: raw})
}

// CheckInstall clears any saved session when the recorded version differs
// from version, then records version. It reports whether the store was
// cleared.
func (s *Store) CheckInstall(ctx context.Context, version string) (bool, error) {
	prev, err := s.InstalledVersion(ctx)
	if err != nil {
		return false, err
	}
	if prev == version {
		return false, nil
	}
	if err := s.Clear(ctx); err != nil {
		return false, err
	}
	if err := s.SetInstalledVersion(ctx, version); err != nil {
		return true, err
	}
	return true, nil
}
