//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/infra/db/memory"
	"event-companion-sync/internal/usecase"
)

type fixture struct {
	uc    usecase.SyncUseCase
	jobs  *memory.JobStore
	logs  *memory.LogStore
	clock *fakeClock
}

func newFixture(opts ...usecase.SyncOption) *fixture {
	f := &fixture{
		jobs:  memory.NewJobStore(),
		logs:  memory.NewLogStore(),
		clock: newFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
	}
	opts = append([]usecase.SyncOption{usecase.WithClock(f.clock.Now)}, opts...)
	f.uc = usecase.NewSyncUseCase(f.jobs, f.logs, memory.TxManager{}, testLogger(), opts...)
	return f
}

func (f *fixture) create(t *testing.T, total, maxRetries int) *model.SyncJob {
	t.Helper()
	job, err := f.uc.CreateJob(context.Background(), usecase.CreateJobInput{
		ObjectType:   model.ObjectTypeSpeakers,
		Source:       model.SyncSourceManual,
		RecordsTotal: total,
		MaxRetries:   maxRetries,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *fixture) step(t *testing.T, id string, ev model.Event) *model.SyncJob {
	t.Helper()
	job, err := f.uc.Transition(context.Background(), id, ev)
	if err != nil {
		t.Fatalf("Transition(%s): %v", ev.Type, err)
	}
	return job
}

func (f *fixture) logMessages(t *testing.T, id string) []*model.SyncLogEntry {
	t.Helper()
	var out []*model.SyncLogEntry
	for e, err := range f.uc.ListLogs(context.Background(), id) {
		if err != nil {
			t.Fatalf("ListLogs: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestSyncUseCase_CreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending job with a generated id", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 45, 3)
		if job.ID == "" || job.Status != model.SyncStatusPending {
			t.Fatalf("unexpected job: %+v", job)
		}
		if !job.StartTime.Equal(f.clock.Now()) {
			t.Errorf("expected start time %v, got %v", f.clock.Now(), job.StartTime)
		}
		if len(f.logMessages(t, job.ID)) != 1 {
			t.Errorf("expected a creation log entry")
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		f := newFixture()
		bad := []usecase.CreateJobInput{
			{ObjectType: "sessions", Source: model.SyncSourceManual, RecordsTotal: 1},
			{ObjectType: model.ObjectTypeAgenda, Source: "cron", RecordsTotal: 1},
			{ObjectType: model.ObjectTypeAgenda, Source: model.SyncSourceManual, RecordsTotal: -1},
			{ObjectType: model.ObjectTypeAgenda, Source: model.SyncSourceManual, RecordsTotal: 1, MaxRetries: -1},
		}
		for _, in := range bad {
			if _, err := f.uc.CreateJob(ctx, in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument for %+v, got %v", in, err)
			}
		}
		if f.jobs.Len() != 0 {
			t.Errorf("expected no jobs stored, got %d", f.jobs.Len())
		}
	})
}

func TestSyncUseCase_SpeakersScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	job := f.create(t, 45, 3)
	if job.Status != model.SyncStatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}

	job = f.step(t, job.ID, model.Start())
	if job.Status != model.SyncStatusRunning {
		t.Fatalf("expected running, got %s", job.Status)
	}

	job = f.step(t, job.ID, model.ReportProgress(12))
	if job.RecordsProcessed != 12 {
		t.Fatalf("expected 12 processed, got %d", job.RecordsProcessed)
	}

	f.clock.Advance(42 * time.Second)
	job = f.step(t, job.ID, model.Fail("API rate limit exceeded"))
	if job.Status != model.SyncStatusFailed || job.ErrorMessage != "API rate limit exceeded" || job.EndTime == nil {
		t.Fatalf("unexpected failed job: %+v", job)
	}
	if job.Duration == nil || *job.Duration != 42 {
		t.Fatalf("expected 42s duration, got %v", job.Duration)
	}
	firstStart := job.StartTime

	f.clock.Advance(time.Minute)
	job, err := f.uc.Requeue(ctx, job.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if job.Status != model.SyncStatusPending || job.RetryCount != 1 || job.RecordsProcessed != 0 {
		t.Fatalf("unexpected requeued job: %+v", job)
	}
	if !job.StartTime.After(firstStart) {
		t.Errorf("expected a new start time after requeue")
	}
	if job.EndTime != nil || job.Duration != nil || job.ErrorMessage != "" {
		t.Errorf("expected previous attempt cleared, got %+v", job)
	}

	stored, _ := f.uc.GetJob(ctx, job.ID)
	if stored.RetryCount != 1 || stored.Status != model.SyncStatusPending {
		t.Errorf("store disagrees with returned job: %+v", stored)
	}
}

func TestSyncUseCase_CompleteScenario(t *testing.T) {
	ctx := context.Background()

	t.Run("should succeed once all records are processed", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 20, 3)
		f.step(t, job.ID, model.Start())
		f.step(t, job.ID, model.ReportProgress(15))
		f.step(t, job.ID, model.ReportProgress(15)) // clamped to 20
		f.clock.Advance(3 * time.Second)
		job = f.step(t, job.ID, model.Complete())

		if job.Status != model.SyncStatusSuccess || job.RecordsProcessed != 20 {
			t.Fatalf("unexpected completed job: %+v", job)
		}
		if job.Duration == nil || *job.Duration < 0 || *job.Duration != 3 {
			t.Fatalf("expected duration 3s, got %v", job.Duration)
		}
		if got := model.ProgressPercent(job); got != 100 {
			t.Errorf("expected 100%%, got %v", got)
		}
	})

	t.Run("should reject complete before all records are processed", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 20, 3)
		f.step(t, job.ID, model.Start())
		f.step(t, job.ID, model.ReportProgress(5))

		_, err := f.uc.Transition(ctx, job.ID, model.Complete())
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Fatalf("expected ErrInvariantViolation, got %v", err)
		}
		stored, _ := f.uc.GetJob(ctx, job.ID)
		if stored.Status != model.SyncStatusRunning || stored.EndTime != nil {
			t.Errorf("rejected complete mutated the job: %+v", stored)
		}
	})

	t.Run("should never leave success", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 0, 3)
		f.step(t, job.ID, model.Start())
		f.step(t, job.ID, model.Complete())
		for _, ev := range []model.Event{model.Start(), model.ReportProgress(1), model.Fail("x"), model.Retry(), model.Complete()} {
			if _, err := f.uc.Transition(ctx, job.ID, ev); !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("%s from success: expected ErrInvalidTransition, got %v", ev.Type, err)
			}
		}
	})
}

func TestSyncUseCase_RetryBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.create(t, 10, 3)

	for i := 1; i <= 3; i++ {
		f.step(t, job.ID, model.Start())
		f.step(t, job.ID, model.Fail("boom"))
		job = f.step(t, job.ID, model.Retry())
		if job.RetryCount != i {
			t.Fatalf("expected retry count %d, got %d", i, job.RetryCount)
		}
	}

	f.step(t, job.ID, model.Start())
	failed := f.step(t, job.ID, model.FailRecoverable("still rate limited"))
	if failed.Status != model.SyncStatusFailed {
		t.Fatalf("expected recoverable failure without budget to land in failed, got %s", failed.Status)
	}

	before, _ := f.uc.GetJob(ctx, job.ID)
	_, err := f.uc.Requeue(ctx, job.ID)
	if !errors.Is(err, domain.ErrRetryBudgetExceeded) {
		t.Fatalf("4th requeue: expected ErrRetryBudgetExceeded, got %v", err)
	}
	after, _ := f.uc.GetJob(ctx, job.ID)
	if after.RetryCount != 3 || after.Status != model.SyncStatusFailed || after.ErrorMessage != before.ErrorMessage {
		t.Errorf("rejected requeue changed the job: before=%+v after=%+v", before, after)
	}
}

func TestSyncUseCase_TransitionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.uc.Transition(ctx, "missing", model.Start()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	job := f.create(t, 10, 1)
	if _, err := f.uc.Transition(ctx, job.ID, model.Complete()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("pending -> success: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.uc.Transition(ctx, job.ID, model.ReportProgress(3)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("progress on pending: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.uc.Transition(ctx, job.ID, model.Event{Type: "cancel"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancel: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSyncUseCase_ConcurrentProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.create(t, 1000, 3)
	f.step(t, job.ID, model.Start())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.uc.Transition(ctx, job.ID, model.ReportProgress(7))
		}()
	}
	// a terminal event racing the progress reports must not be lost either
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.uc.Transition(ctx, job.ID, model.Fail("worker crashed"))
	}()
	wg.Wait()

	got, _ := f.uc.GetJob(ctx, job.ID)
	if got.Status != model.SyncStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.RecordsProcessed%7 != 0 || got.RecordsProcessed > got.RecordsTotal {
		t.Fatalf("lost or torn update: processed=%d", got.RecordsProcessed)
	}
}

func TestSyncUseCase_Logs(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions should append audit entries in order", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 10, 3)
		f.step(t, job.ID, model.Start())
		f.clock.Advance(time.Second)
		f.step(t, job.ID, model.ReportProgress(10))
		f.step(t, job.ID, model.Complete())

		entries := f.logMessages(t, job.ID)
		if len(entries) != 4 {
			t.Fatalf("expected 4 entries, got %d", len(entries))
		}
		wantLevels := []model.LogLevel{model.LogLevelInfo, model.LogLevelInfo, model.LogLevelDebug, model.LogLevelInfo}
		for i, e := range entries {
			if e.Level != wantLevels[i] {
				t.Errorf("entry %d: expected level %s, got %s (%s)", i, wantLevels[i], e.Level, e.Message)
			}
			if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
				t.Errorf("entry %d is older than its predecessor", i)
			}
			if i > 0 && e.ID <= entries[i-1].ID {
				t.Errorf("entry ids should sort in append order: %s after %s", e.ID, entries[i-1].ID)
			}
		}
		if entries[3].Details["to"] != "success" {
			t.Errorf("expected completion details, got %v", entries[3].Details)
		}
	})

	t.Run("AppendLog should validate and require an existing job", func(t *testing.T) {
		f := newFixture()
		job := f.create(t, 10, 3)

		e, err := f.uc.AppendLog(ctx, job.ID, model.LogLevelWarning, "WordPress returned partial page", map[string]any{"page": 3})
		if err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
		if e.ID == "" || e.Timestamp.IsZero() || e.JobID != job.ID {
			t.Errorf("unexpected entry: %+v", e)
		}

		if _, err := f.uc.AppendLog(ctx, "missing", model.LogLevelInfo, "x", nil); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.uc.AppendLog(ctx, job.ID, "trace", "x", nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for bad level, got %v", err)
		}
		if _, err := f.uc.AppendLog(ctx, job.ID, model.LogLevelInfo, " ", nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty message, got %v", err)
		}
	})

	t.Run("a failing log store should not undo the transition", func(t *testing.T) {
		jobs := memory.NewJobStore()
		logs := &MockSyncLogRepo{AppendFunc: func(context.Context, *model.SyncLogEntry) error { return errors.New("disk full") }}
		uc := usecase.NewSyncUseCase(jobs, logs, nil, testLogger())

		job, err := uc.CreateJob(ctx, usecase.CreateJobInput{ObjectType: model.ObjectTypeAgenda, Source: model.SyncSourceScheduled, RecordsTotal: 1})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if _, err := uc.Transition(ctx, job.ID, model.Start()); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		got, _ := uc.GetJob(ctx, job.ID)
		if got.Status != model.SyncStatusRunning {
			t.Errorf("expected running, got %s", got.Status)
		}
	})
}

func TestSyncUseCase_ListAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a := f.create(t, 10, 3)
	b := f.create(t, 10, 3)
	f.create(t, 10, 3)
	f.step(t, a.ID, model.Start())
	f.step(t, b.ID, model.Start())
	f.step(t, b.ID, model.Fail("boom"))

	n := 0
	for j, err := range f.uc.ListJobs(ctx, model.JobFilter{Status: model.SyncStatusRunning}) {
		if err != nil {
			t.Fatalf("ListJobs: %v", err)
		}
		if j.ID != a.ID {
			t.Errorf("unexpected running job %s", j.ID)
		}
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 running job, got %d", n)
	}

	sum, err := f.uc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 3 || sum.ByStatus[model.SyncStatusRunning] != 1 ||
		sum.ByStatus[model.SyncStatusFailed] != 1 || sum.ByStatus[model.SyncStatusPending] != 1 ||
		sum.ByStatus[model.SyncStatusSuccess] != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestSyncUseCase_Locker(t *testing.T) {
	ctx := context.Background()

	t.Run("should lock and unlock around each transition", func(t *testing.T) {
		locker := NewMockLocker()
		f := newFixture(usecase.WithLocker(locker, time.Second))
		job := f.create(t, 10, 3)
		f.step(t, job.ID, model.Start())

		if locker.Locks != 1 || locker.Unlocks != 1 {
			t.Fatalf("expected 1 lock/unlock, got %d/%d", locker.Locks, locker.Unlocks)
		}
		if locker.LastKey != "sync:job:"+job.ID {
			t.Errorf("unexpected lock key %q", locker.LastKey)
		}
	})

	t.Run("should reject the transition when the lock is held elsewhere", func(t *testing.T) {
		locker := NewMockLocker()
		locker.TryLockFunc = func(context.Context, string, time.Duration) (string, error) {
			return "", errors.New("held")
		}
		f := newFixture(usecase.WithLocker(locker, time.Second))
		job := f.create(t, 10, 3)

		if _, err := f.uc.Transition(ctx, job.ID, model.Start()); !errors.Is(err, domain.ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", err)
		}
		got, _ := f.uc.GetJob(ctx, job.ID)
		if got.Status != model.SyncStatusPending {
			t.Errorf("job changed without the lock: %s", got.Status)
		}
	})
}
