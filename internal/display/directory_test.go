package display

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform/platformtest"
)

func TestDirectoryList_SortsLeftToRight(t *testing.T) {
	src := platformtest.NewDisplays(
		platformtest.Display("right", 3840, 0, 1920, 1080),
		platformtest.Display("left", -1920, 0, 1920, 1080),
		platformtest.Display("middle", 0, 0, 3840, 2160),
	)

	got, err := NewDirectory(src).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"left", "middle", "right"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestDirectoryList_SyntheticFallback(t *testing.T) {
	unavailable := platformtest.NewDisplays()
	unavailable.Fail(fmt.Errorf("open display: %w", platform.ErrDisplaysUnavailable))

	tests := []struct {
		name string
		dir  *Directory
	}{
		{"nil source", NewDirectory(nil)},
		{"no displays reported", NewDirectory(platformtest.NewDisplays())},
		{"enumeration unavailable", NewDirectory(unavailable)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.dir.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []platform.Display{Synthetic}, got)
		})
	}
}

func TestDirectoryList_HardFailurePropagates(t *testing.T) {
	src := platformtest.NewDisplays()
	boom := errors.New("randr reply failed")
	src.Fail(boom)

	_, err := NewDirectory(src).List(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestByID(t *testing.T) {
	displays := []platform.Display{
		platformtest.Display("A", 0, 0, 10, 10),
		platformtest.Display("B", 10, 0, 10, 10),
	}
	got, ok := ByID(displays, "B")
	require.True(t, ok)
	assert.Equal(t, "B", got.ID)

	_, ok = ByID(displays, "")
	assert.False(t, ok)
	_, ok = ByID(displays, "C")
	assert.False(t, ok)
}
