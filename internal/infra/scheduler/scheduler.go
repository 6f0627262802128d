package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/usecase"
)

// Trigger starts a sync of one object type. Implemented by worker.SyncRunner.
type Trigger interface {
	Trigger(ctx context.Context, objectType model.ObjectType, src model.SyncSource) (*model.SyncJob, error)
}

// Scheduler fires scheduled syncs on cron specs ("*/15 * * * *"). A tick is
// skipped while a job of the same type is still pending or running.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	syncUC  usecase.SyncUseCase
	log     *zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[model.ObjectType]cron.EntryID
	specs   map[model.ObjectType]string
}

func NewScheduler(trigger Trigger, syncUC usecase.SyncUseCase, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		syncUC:  syncUC,
		log:     logging.Component(logger, "SyncScheduler"),
		entries: map[model.ObjectType]cron.EntryID{},
		specs:   map[model.ObjectType]string{},
	}
}

// Add registers spec for objectType, replacing any earlier spec.
func (s *Scheduler) Add(objectType model.ObjectType, spec string) error {
	if !objectType.Valid() {
		return fmt.Errorf("schedule: unknown object type %q", objectType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(spec, func() { s.fire(objectType) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", objectType, err)
	}
	if old, ok := s.entries[objectType]; ok {
		s.cron.Remove(old)
	}
	s.entries[objectType] = id
	s.specs[objectType] = spec
	return nil
}

func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("schedules", len(s.specs)).Msg("sync scheduler started")
}

// Stop halts the cron loop and waits for in-flight triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	cancel()
	s.log.Info().Msg("sync scheduler stopped")
}

type Entry struct {
	ObjectType model.ObjectType
	Spec       string
	Next       time.Time
}

// Entries lists the registered schedules with their next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for ot, id := range s.entries {
		out = append(out, Entry{ObjectType: ot, Spec: s.specs[ot], Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectType < out[j].ObjectType })
	return out
}

func (s *Scheduler) fire(objectType model.ObjectType) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Str("object_type", string(objectType)).Msg("scheduled sync panicked")
		}
	}()
	s.Fire(ctx, objectType)
}

// Fire runs one scheduled tick for objectType now.
func (s *Scheduler) Fire(ctx context.Context, objectType model.ObjectType) *model.SyncJob {
	busy, err := s.busy(ctx, objectType)
	if err != nil {
		s.log.Error().Err(err).Str("object_type", string(objectType)).Msg("could not check for active syncs")
		return nil
	}
	if busy {
		s.log.Info().Str("object_type", string(objectType)).Msg("previous sync still active, skipping tick")
		return nil
	}
	job, err := s.trigger.Trigger(ctx, objectType, model.SyncSourceScheduled)
	if err != nil {
		s.log.Error().Err(err).Str("object_type", string(objectType)).Msg("scheduled sync failed to start")
		return job
	}
	s.log.Info().Str("job_id", job.ID).Str("object_type", string(objectType)).Msg("scheduled sync queued")
	return job
}

func (s *Scheduler) busy(ctx context.Context, objectType model.ObjectType) (bool, error) {
	for j, err := range s.syncUC.ListJobs(ctx, model.JobFilter{ObjectType: objectType}) {
		if err != nil {
			return false, err
		}
		if j.Status == model.SyncStatusPending || j.Status == model.SyncStatusRunning {
			return true, nil
		}
	}
	return false, nil
}
