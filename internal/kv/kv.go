// Package kv provides the durable key-value store the session record is
// persisted in.
package kv

import (
	"context"
	"encoding/json"
	"sync"
)

// Store is a durable string-keyed store of JSON values.
type Store interface {
	// Get returns the values present for keys. Missing keys are omitted.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set writes all values in one operation.
	Set(ctx context.Context, values map[string]json.RawMessage) error
	// Remove deletes keys. Removing absent keys is not an error.
	Remove(ctx context.Context, keys ...string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	sets   int
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, values map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = append(json.RawMessage(nil), v...)
	}
	m.sets++
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Sets returns how many Set calls have been made.
func (m *Memory) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}
