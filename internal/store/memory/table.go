package memory

import (
	"sync"

	"rex/api/internal/store"
)

// table is a two-level map (partition, then row) guarded by its own lock.
// Writers on one table never block readers or writers on another.
type table[V any] struct {
	mu   sync.RWMutex
	rows map[store.ID]map[store.ID]V
}

func newTable[V any]() *table[V] {
	return &table[V]{rows: make(map[store.ID]map[store.ID]V)}
}

type lookup int

const (
	found lookup = iota
	missingPartition
	missingRow
)

func (t *table[V]) get(partition, row store.ID) (V, lookup) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero V
	rows, ok := t.rows[partition]
	if !ok {
		return zero, missingPartition
	}
	value, ok := rows[row]
	if !ok {
		return zero, missingRow
	}
	return value, found
}

// list copies the partition so callers can filter without holding the lock.
func (t *table[V]) list(partition store.ID) ([]V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows, ok := t.rows[partition]
	if !ok {
		return nil, false
	}
	out := make([]V, 0, len(rows))
	for _, value := range rows {
		out = append(out, value)
	}
	return out, true
}

func (t *table[V]) put(partition, row store.ID, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, ok := t.rows[partition]
	if !ok {
		rows = make(map[store.ID]V)
		t.rows[partition] = rows
	}
	rows[row] = value
}

// remove keeps an emptied partition in place, so a later read of it yields
// an empty result rather than a missing partition.
func (t *table[V]) remove(partition, row store.ID) lookup {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, ok := t.rows[partition]
	if !ok {
		return missingPartition
	}
	if _, ok := rows[row]; !ok {
		return missingRow
	}
	delete(rows, row)
	return found
}
