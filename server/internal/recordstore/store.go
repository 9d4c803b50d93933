// Package recordstore persists connection records per group so a coordinator
// can recover them after its own restart.
package recordstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no record exists for a client id.
var ErrNotFound = errors.New("recordstore: record not found")

// Record is what the coordinator remembers about one attached connection.
type Record struct {
	ClientID string `json:"clientId"`
	// URL is the peer's last known application URL, used to render pushes.
	URL string `json:"url"`
	// Cookie is the raw credential header forwarded with every render request.
	Cookie string `json:"cookie"`
}

// Store persists records scoped to a group key.
type Store interface {
	Put(ctx context.Context, group string, rec Record) error
	Get(ctx context.Context, group, clientID string) (Record, error)
	Delete(ctx context.Context, group, clientID string) error
}

// memoryStore keeps records in process memory.
type memoryStore struct {
	mu     sync.RWMutex
	groups map[string]map[string]Record
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{groups: make(map[string]map[string]Record)}
}

func (m *memoryStore) Put(_ context.Context, group string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[group]
	if g == nil {
		g = make(map[string]Record)
		m.groups[group] = g
	}
	g[rec.ClientID] = rec
	return nil
}

func (m *memoryStore) Get(_ context.Context, group, clientID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.groups[group][clientID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) Delete(_ context.Context, group, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[group]; ok {
		delete(g, clientID)
		if len(g) == 0 {
			delete(m.groups, group)
		}
	}
	return nil
}
