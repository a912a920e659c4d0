// Package lock serializes structural mutations per test case. A mutation of
// a test case's steps holds that test case's lock from the cycle check until
// the commit, so two complementary call steps cannot both pass the check.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// GraphLockID is the key serializing commits that add call edges across all
// test cases. Two complementary call steps have different callers, so the
// caller locks alone cannot keep both from passing the cycle check. Test
// case ids are positive, so the key never collides with one.
const GraphLockID int64 = 0

// Token proves ownership of a test case lock.
type Token struct {
	TestCaseID int64
	Holder     string
}

type entry struct {
	sem    *semaphore.Weighted
	refs   int
	holder string
}

// Manager hands out one exclusive lock per test case id. Entries exist only
// while someone holds or waits for them.
type Manager struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[int64]*entry)}
}

// Acquire blocks until the lock of id is free or ctx is done.
func (m *Manager) Acquire(ctx context.Context, id int64) (Token, error) {
	e := m.ref(id)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.unref(id)
		return Token{}, fmt.Errorf("locking test case %d: %w", id, err)
	}
	return m.grant(id, e)
}

// TryAcquire takes the lock of id without waiting. Returns ErrLockHeld if
// it is taken.
func (m *Manager) TryAcquire(id int64) (Token, error) {
	e := m.ref(id)
	if !e.sem.TryAcquire(1) {
		m.unref(id)
		return Token{}, fmt.Errorf("test case %d: %w", id, types.ErrLockHeld)
	}
	return m.grant(id, e)
}

// Release frees the lock held by tok. Returns ErrNotLockHolder if tok does
// not hold it.
func (m *Manager) Release(tok Token) error {
	m.mu.Lock()
	e, ok := m.entries[tok.TestCaseID]
	if !ok || e.holder == "" || e.holder != tok.Holder {
		m.mu.Unlock()
		return fmt.Errorf("test case %d: %w", tok.TestCaseID, types.ErrNotLockHolder)
	}
	e.holder = ""
	m.mu.Unlock()

	e.sem.Release(1)
	m.unref(tok.TestCaseID)
	return nil
}

// Holder returns the holder of the lock of id, if any.
func (m *Manager) Holder(id int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.holder == "" {
		return "", false
	}
	return e.holder, true
}

func (m *Manager) grant(id int64, e *entry) (Token, error) {
	holder, err := uuid.NewV7()
	if err != nil {
		e.sem.Release(1)
		m.unref(id)
		return Token{}, fmt.Errorf("generating lock holder: %w", err)
	}
	m.mu.Lock()
	e.holder = holder.String()
	m.mu.Unlock()
	return Token{TestCaseID: id, Holder: holder.String()}, nil
}

func (m *Manager) ref(id int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[id] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(m.entries, id)
	}
}

// size reports the number of live entries.
func (m *Manager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
