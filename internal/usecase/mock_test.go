//go:build !integration

package usecase_test

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================
// Repositories
// =============================

// ---- Mock SyncLogRepository ----

type MockSyncLogRepo struct {
	mu      sync.Mutex
	entries []*model.SyncLogEntry

	AppendFunc func(ctx context.Context, entry *model.SyncLogEntry) error
}

var _ repository.SyncLogRepository = (*MockSyncLogRepo)(nil)

func (m *MockSyncLogRepo) Append(ctx context.Context, _ repository.Tx, entry *model.SyncLogEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry.Clone())
	return nil
}

func (m *MockSyncLogRepo) ListByJob(_ context.Context, _ repository.Tx, jobID string) iter.Seq2[*model.SyncLogEntry, error] {
	return func(yield func(*model.SyncLogEntry, error) bool) {
		m.mu.Lock()
		var out []*model.SyncLogEntry
		for _, e := range m.entries {
			if e.JobID == jobID {
				out = append(out, e.Clone())
			}
		}
		m.mu.Unlock()
		for _, e := range out {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// ---- Mock Locker ----

type MockLocker struct {
	mu      sync.Mutex
	Locks   int
	Unlocks int
	LastKey string

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var _ repository.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{} }

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locks++
	m.LastKey = key
	return uuid.NewString(), nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unlocks++
	return nil
}
