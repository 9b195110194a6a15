package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store with an optional total byte capacity. A
// capacity of 0 means unlimited. With a capacity set, writes that would
// exceed it fail (return false) while previously stored keys stay intact,
// which mirrors how browser-style storage degrades when full.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	capacity int
	used     int
}

// NewMemory creates an in-memory store. capacityBytes of 0 disables the
// capacity limit.
func NewMemory(capacityBytes int) *Memory {
	return &Memory{
		data:     make(map[string]string),
		capacity: capacityBytes,
	}
}

// Get returns the value for key.
func (m *Memory) Get(ctx context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set stores value under key, honoring the capacity limit.
func (m *Memory) Set(ctx context.Context, key, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := len(key) + len(value)
	if old, ok := m.data[key]; ok {
		delta = len(value) - len(old)
	}

	if m.capacity > 0 && m.used+delta > m.capacity {
		return false
	}

	m.data[key] = value
	m.used += delta
	return true
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// List returns sorted keys with the given prefix.
func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
