package durable

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// MemoryStore is an in-memory Store implementation used by tests for
// components layered on top of L3 (write buffer, synchronizer), so
// those packages can be exercised without a live Postgres instance.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]json.RawMessage

	// Unavailable, when set, makes every operation fail with
	// StoreTransient, simulating an outage for retry/DLQ tests.
	Unavailable bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryStore) checkAvailable(op string) error {
	if m.Unavailable {
		return olympuserr.New(olympuserr.StoreTransient, op, "store unavailable")
	}
	return nil
}

func (m *MemoryStore) Select(ctx context.Context, table, id string) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable("durable.Select"); err != nil {
		return nil, err
	}
	rows, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	v, ok := rows[id]
	if !ok {
		return nil, nil
	}
	return &Row{ID: id, Value: v}, nil
}

func (m *MemoryStore) Create(ctx context.Context, table string, value json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable("durable.Create"); err != nil {
		return "", err
	}
	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]json.RawMessage)
		m.tables[table] = rows
	}
	id := uuid.NewString()
	rows[id] = value
	return id, nil
}

func (m *MemoryStore) Update(ctx context.Context, table, id string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable("durable.Update"); err != nil {
		return err
	}
	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]json.RawMessage)
		m.tables[table] = rows
	}
	rows[id] = value
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAvailable("durable.Delete"); err != nil {
		return err
	}
	if rows, ok := m.tables[table]; ok {
		delete(rows, id)
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, _ string, args ...any) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkAvailable("durable.Query"); err != nil {
		return nil, err
	}
	var table string
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			table = s
		}
	}
	rows, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	out := make([]Row, 0, len(rows))
	for id, v := range rows {
		out = append(out, Row{ID: id, Value: v})
	}
	return out, nil
}
