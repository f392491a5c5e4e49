// Package storage defines the key-value store consumed by search scores,
// attachments and vault sources, plus an in-memory implementation.
//
// Durable implementations live in the sqlite and bolt subpackages.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates a missing key.
var ErrNotFound = errors.New("storage: key not found")

// Interface is a string key-value store.
type Interface interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	GetAllKeys(ctx context.Context) ([]string, error)
	RemoveKey(ctx context.Context, key string) error
}

// Memory is a map-backed Interface safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// GetValue implements Interface.
func (m *Memory) GetValue(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetValue implements Interface.
func (m *Memory) SetValue(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// GetAllKeys implements Interface. Keys are sorted.
func (m *Memory) GetAllKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// RemoveKey implements Interface. Removing a missing key is not an error.
func (m *Memory) RemoveKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
