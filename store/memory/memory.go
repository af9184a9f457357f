// Package memory provides an in-memory DocumentStore for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/store"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	docs     map[casebook.Collection]map[string]casebook.Document
	notifier *store.Notifier
	now      func() time.Time
}

func New() *Memory {
	return &Memory{
		docs:     make(map[casebook.Collection]map[string]casebook.Document),
		notifier: store.NewNotifier(),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, c casebook.Collection, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[c][id]
	if !ok {
		return nil, casebook.ErrNotFound
	}
	return append([]byte(nil), d.Data...), nil
}

// Put stores a copy of data; callers may reuse the slice.
func (m *Memory) Put(_ context.Context, c casebook.Collection, id string, data []byte) error {
	now := m.now()

	m.mu.Lock()
	if m.docs[c] == nil {
		m.docs[c] = make(map[string]casebook.Document)
	}
	m.docs[c][id] = casebook.Document{
		ID:        id,
		Data:      append([]byte(nil), data...),
		UpdatedAt: now,
	}
	m.mu.Unlock()

	m.notifier.Publish(casebook.Change{Collection: c, ID: id, Kind: casebook.ChangePut, At: now})
	return nil
}

func (m *Memory) Delete(_ context.Context, c casebook.Collection, id string) error {
	m.mu.Lock()
	if _, ok := m.docs[c][id]; !ok {
		m.mu.Unlock()
		return casebook.ErrNotFound
	}
	delete(m.docs[c], id)
	m.mu.Unlock()

	m.notifier.Publish(casebook.Change{Collection: c, ID: id, Kind: casebook.ChangeDelete, At: m.now()})
	return nil
}

func (m *Memory) List(_ context.Context, c casebook.Collection) ([]casebook.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]casebook.Document, 0, len(m.docs[c]))
	for _, d := range m.docs[c] {
		d.Data = append([]byte(nil), d.Data...)
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) Subscribe(ctx context.Context, c casebook.Collection) (<-chan casebook.Change, error) {
	return m.notifier.Subscribe(ctx, c), nil
}

// Reset drops every document. Subscriptions stay open.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[casebook.Collection]map[string]casebook.Document)
	return nil
}
