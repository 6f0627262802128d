package memory

import (
	"context"
	"iter"
	"sync"
	"time"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
)

var _ repository.SyncLogRepository = (*LogStore)(nil)

// LogStore is an append-only, process-local audit trail.
type LogStore struct {
	mu      sync.RWMutex
	entries []*model.SyncLogEntry
	byJob   map[string][]int // job id -> indexes into entries
	now     func() time.Time
}

func NewLogStore() *LogStore {
	return &LogStore{byJob: make(map[string][]int), now: time.Now}
}

func (s *LogStore) Append(ctx context.Context, _ repository.Tx, entry *model.SyncLogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	cp := entry.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.Timestamp = s.stamp(cp.JobID, cp.Timestamp)
	entry.Timestamp = cp.Timestamp
	s.entries = append(s.entries, cp)
	s.byJob[cp.JobID] = append(s.byJob[cp.JobID], len(s.entries)-1)
	return nil
}

// stamp returns the append time for a job's next entry: at (or now when at
// is zero), never earlier than the entry before it. Callers hold s.mu.
func (s *LogStore) stamp(jobID string, at time.Time) time.Time {
	ts := at
	if ts.IsZero() {
		ts = s.now()
	}
	if idx := s.byJob[jobID]; len(idx) > 0 {
		if last := s.entries[idx[len(idx)-1]].Timestamp; ts.Before(last) {
			ts = last
		}
	}
	return ts
}

func (s *LogStore) ListByJob(ctx context.Context, _ repository.Tx, jobID string) iter.Seq2[*model.SyncLogEntry, error] {
	return func(yield func(*model.SyncLogEntry, error) bool) {
		for _, e := range s.snapshot(jobID) {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *LogStore) snapshot(jobID string) []*model.SyncLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byJob[jobID]
	out := make([]*model.SyncLogEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i].Clone())
	}
	return out
}
