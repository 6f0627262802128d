package memory

import (
	"context"
	"iter"
	"sync"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
)

var _ repository.SyncJobRepository = (*JobStore)(nil)

// JobStore is the process-local job registry. It keeps insertion order for
// listings and hands out copies only.
type JobStore struct {
	mu    sync.RWMutex
	byID  map[string]*model.SyncJob
	order []string
	now   func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		byID: make(map[string]*model.SyncJob),
		now:  time.Now,
	}
}

func (s *JobStore) Create(ctx context.Context, _ repository.Tx, job *model.SyncJob) error {
	if job.IsZero() {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[job.ID]; ok {
		return domain.ErrDuplicateID
	}
	cp := job.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	s.byID[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	return nil
}

func (s *JobStore) Get(ctx context.Context, _ repository.Tx, id string) (*model.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *JobStore) Update(ctx context.Context, _ repository.Tx, id string, patch repository.JobPatch) (*model.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := j.Clone()
	if err := patch(cp); err != nil {
		return nil, err
	}
	// id is the map key; a patch must not move the record.
	cp.ID = id
	cp.UpdatedAt = model.NextUpdatedAt(j.UpdatedAt, s.now())
	s.byID[id] = cp
	return cp.Clone(), nil
}

func (s *JobStore) List(ctx context.Context, _ repository.Tx, filter model.JobFilter) iter.Seq2[*model.SyncJob, error] {
	return func(yield func(*model.SyncJob, error) bool) {
		for _, j := range s.snapshot() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !filter.Match(j) {
				continue
			}
			if !yield(j, nil) {
				return
			}
		}
	}
}

// snapshot copies the current jobs so iteration does not hold the lock
// while the consumer runs.
func (s *JobStore) snapshot() []*model.SyncJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SyncJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
