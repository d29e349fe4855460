package registry

import (
	"sync"

	"bluecarbon-registry/internal/core/domain"
)

// lockTable hands out one exclusive section per entity id. Entries are
// reference counted and removed when the last holder releases them.
type lockTable struct {
	mu      sync.Mutex
	entries map[domain.EntityRef]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[domain.EntityRef]*lockEntry)}
}

// acquire locks refs in the order given and returns the matching release.
// Callers pass refs in project, credit, report order.
func (t *lockTable) acquire(refs ...domain.EntityRef) func() {
	held := make([]domain.EntityRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" || containsRef(held, ref) {
			continue
		}
		t.mu.Lock()
		e, ok := t.entries[ref]
		if !ok {
			e = &lockEntry{}
			t.entries[ref] = e
		}
		e.refs++
		t.mu.Unlock()

		e.mu.Lock()
		held = append(held, ref)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.release(held[i])
		}
	}
}

func (t *lockTable) release(ref domain.EntityRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[ref]
	e.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, ref)
	}
}

// size reports the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func containsRef(refs []domain.EntityRef, ref domain.EntityRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
