package kv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	store := NewFile(filepath.Join(t.TempDir(), "nested", "state.json"))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got, "missing file reads as empty")

	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		"a": json.RawMessage(`{"x":1}`),
		"b": json.RawMessage(`2`),
	}))

	got, err = store.Get(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got["a"]))
	assert.JSONEq(t, `2`, string(got["b"]))
	_, ok := got["c"]
	assert.False(t, ok)

	require.NoError(t, store.Remove(ctx, "a", "c"))
	got, err = store.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "b")
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, NewFile(path).Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"v"`)}))

	got, err := NewFile(path).Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `"v"`, string(got["k"]))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "temp files must not be left behind")
	}
}

func TestFile_RemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFile(path)

	require.NoError(t, store.Remove(ctx, "nothing"))
	require.NoError(t, store.Remove(ctx, "nothing"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "removing absent keys must not create the file")
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFile(path).Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`1`)}))
	got, err := m.Get(ctx, "k", "missing")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, m.Remove(ctx, "k", "missing"))
	got, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, m.Sets())
}
