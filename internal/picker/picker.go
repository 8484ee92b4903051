// Package picker lets the user choose browser windows interactively.
package picker

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// ErrNotTerminal is returned when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("picker requires an interactive terminal")

// ErrCancelled is returned when the user aborts the picker.
var ErrCancelled = errors.New("selection cancelled")

// Prompt describes one selection.
type Prompt struct {
	Title       string
	Description string
	// Preselect starts with every window selected.
	Preselect bool
}

var (
	// RestorePrompt picks saved windows to reopen.
	RestorePrompt = Prompt{
		Title:       "Restore windows",
		Description: "space toggles, enter restores",
		Preselect:   true,
	}
	// ClosePrompt picks open windows to save and close.
	ClosePrompt = Prompt{
		Title:       "Save and close windows",
		Description: "space toggles, enter saves and closes",
	}
)

// Options builds one option per window, labelled by its first tab and tab
// count.
func Options(windows []session.WindowSnapshot, preselect bool) []huh.Option[platform.WindowID] {
	opts := make([]huh.Option[platform.WindowID], 0, len(windows))
	for _, w := range windows {
		label := w.Label()
		if w.DisplayID != "" {
			label = fmt.Sprintf("%s  [%s]", label, w.DisplayID)
		}
		opts = append(opts, huh.NewOption(label, w.OriginalID).Selected(preselect))
	}
	return opts
}

// Pick asks which windows to act on and returns their ids. An empty result
// means nothing was selected.
func Pick(p Prompt, windows []session.WindowSnapshot) ([]platform.WindowID, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, ErrNotTerminal
	}
	if len(windows) == 0 {
		return nil, nil
	}

	var selected []platform.WindowID
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[platform.WindowID]().
				Title(p.Title).
				Description(p.Description).
				Options(Options(windows, p.Preselect)...).
				Height(min(len(windows)+2, 15)).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("run picker: %w", err)
	}
	return selected, nil
}
