package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/adapter"
)

var _ adapter.ContentSource = (*StaticSource)(nil)

// Fault makes a StaticSource fail once offset reaches AtRecord. Times limits
// how often it fires; 0 means every time.
type Fault struct {
	AtRecord    int
	Recoverable bool
	Message     string
	Times       int
}

// StaticSource serves fixed record counts. Used by the demo and tests in
// place of a live WordPress site.
type StaticSource struct {
	mu     sync.Mutex
	counts map[model.ObjectType]int
	faults map[model.ObjectType]*Fault
	fired  map[model.ObjectType]int
	delay  time.Duration
}

func NewStaticSource(counts map[model.ObjectType]int) *StaticSource {
	return &StaticSource{
		counts: counts,
		faults: map[model.ObjectType]*Fault{},
		fired:  map[model.ObjectType]int{},
	}
}

// WithFault installs f for objectType.
func (s *StaticSource) WithFault(objectType model.ObjectType, f Fault) *StaticSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[objectType] = &f
	return s
}

// WithDelay slows every batch down, so a watcher can see progress move.
func (s *StaticSource) WithDelay(d time.Duration) *StaticSource {
	s.delay = d
	return s
}

func (s *StaticSource) Count(_ context.Context, objectType model.ObjectType) (int, error) {
	if !objectType.Valid() {
		return 0, domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[objectType], nil
}

func (s *StaticSource) FetchBatch(ctx context.Context, objectType model.ObjectType, offset, limit int) (adapter.Batch, error) {
	if limit <= 0 || offset < 0 {
		return adapter.Batch{}, domain.ErrInvalidArgument
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return adapter.Batch{}, fmt.Errorf("%w: %v", adapter.ErrRecoverable, ctx.Err())
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.faults[objectType]; f != nil && offset >= f.AtRecord && (f.Times == 0 || s.fired[objectType] < f.Times) {
		s.fired[objectType]++
		if f.Recoverable {
			return adapter.Batch{}, fmt.Errorf("%w: %s", adapter.ErrRecoverable, f.Message)
		}
		return adapter.Batch{}, errors.New(f.Message)
	}

	total := s.counts[objectType]
	n := min(limit, max(total-offset, 0))
	return adapter.Batch{Records: n, Done: offset+n >= total}, nil
}
