package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// Compile-time interface check: MemoryStore must implement Repository.
var _ Repository = (*MemoryStore)(nil)

// MemoryStore is an in-process Repository.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string]Record
	stamp  stamper
}

// NewMemoryStore returns an empty store. A nil clock uses the wall clock.
func NewMemoryStore(clock types.Clock) *MemoryStore {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &MemoryStore{
		tables: make(map[string]map[string]Record),
		stamp:  stamper{clock: clock},
	}
}

// Upsert implements Repository.
func (m *MemoryStore) Upsert(ctx context.Context, table string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(table, rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]Record)
		m.tables[table] = rows
	}
	stored := rec.Clone()
	stored[KeyUpdatedAt] = m.stamp.next().Format(TimeLayout)
	rows[rec.UUID()] = stored
	return nil
}

// Select implements Repository.
func (m *MemoryStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !types.IsSyncTable(table) {
		return nil, &Error{Code: CodeUndefinedTable, Message: "relation \"" + table + "\" does not exist"}
	}
	after := ""
	if !q.UpdatedAfter.IsZero() {
		after = q.UpdatedAfter.UTC().Format(TimeLayout)
	}

	m.mu.Lock()
	var out []Record
	for _, rec := range m.tables[table] {
		if q.UserID != "" && rec.UserID() != q.UserID {
			continue
		}
		if rec[KeyUpdatedAt].(string) <= after {
			continue
		}
		out = append(out, rec.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i][KeyUpdatedAt].(string) < out[j][KeyUpdatedAt].(string)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Get returns a copy of one stored record.
func (m *MemoryStore) Get(table, uuid string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tables[table][uuid]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of records stored in table.
func (m *MemoryStore) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}
