package inproc

import (
	"sync"
)

// handleTable maps integer handles to Go values. Handle 0 is never issued
// so that a zero address keeps meaning "null". Freed slots are reused.
type handleTable struct {
	entries  []entry
	freeList []uint64
	mu       sync.RWMutex
}

type entry struct {
	value any
	valid bool
}

func newHandleTable() *handleTable {
	return &handleTable{
		entries:  make([]entry, 0, 16),
		freeList: make([]uint64, 0, 4),
	}
}

// insert stores a value and returns its handle.
func (t *handleTable) insert(value any) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := entry{value: value, valid: true}

	if n := len(t.freeList); n > 0 {
		h := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
		return h
	}

	t.entries = append(t.entries, e)
	return uint64(len(t.entries))
}

// get retrieves a value by handle.
func (t *handleTable) get(h uint64) (any, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if h > uint64(len(t.entries)) {
		return nil, false
	}
	e := t.entries[h-1]
	if !e.valid {
		return nil, false
	}
	return e.value, true
}

// remove drops a handle and returns its value.
func (t *handleTable) remove(h uint64) (any, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if h > uint64(len(t.entries)) {
		return nil, false
	}
	e := &t.entries[h-1]
	if !e.valid {
		return nil, false
	}

	value := e.value
	e.value = nil
	e.valid = false
	t.freeList = append(t.freeList, h)
	return value, true
}

// len returns the number of live handles.
func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}
