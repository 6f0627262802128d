package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/repository"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// SyncUseCase is the lifecycle controller for sync jobs. It is the only
// writer of job status; everything else reads through it.
type SyncUseCase interface {
	// CreateJob registers a new pending job with a generated id.
	CreateJob(ctx context.Context, in CreateJobInput) (*model.SyncJob, error)

	// Transition applies one lifecycle event. Illegal moves fail with
	// domain.ErrInvalidTransition and leave the job unchanged.
	Transition(ctx context.Context, jobID string, ev model.Event) (*model.SyncJob, error)

	// Requeue puts a failed job back to pending, spending one retry.
	Requeue(ctx context.Context, jobID string) (*model.SyncJob, error)

	GetJob(ctx context.Context, jobID string) (*model.SyncJob, error)
	ListJobs(ctx context.Context, filter model.JobFilter) iter.Seq2[*model.SyncJob, error]

	ListLogs(ctx context.Context, jobID string) iter.Seq2[*model.SyncLogEntry, error]
	AppendLog(ctx context.Context, jobID string, level model.LogLevel, message string, details map[string]any) (*model.SyncLogEntry, error)

	// Summary counts jobs per status.
	Summary(ctx context.Context) (*model.JobSummary, error)
}

type CreateJobInput struct {
	ObjectType   model.ObjectType
	Source       model.SyncSource
	RecordsTotal int
	MaxRetries   int
}

var _ SyncUseCase = (*syncUC)(nil)

type syncUC struct {
	jobs    repository.SyncJobRepository
	logs    repository.SyncLogRepository
	tm      repository.TransactionManager
	locker  repository.Locker
	lockTTL time.Duration
	keys    *keyedMutex
	now     func() time.Time
	log     *zerolog.Logger
}

// SyncOption tweaks the use case at construction time.
type SyncOption func(*syncUC)

// WithLocker adds a cross-process lock around every job mutation.
func WithLocker(l repository.Locker, ttl time.Duration) SyncOption {
	return func(u *syncUC) {
		u.locker = l
		if ttl > 0 {
			u.lockTTL = ttl
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) SyncOption {
	return func(u *syncUC) { u.now = now }
}

// NewSyncUseCase wires the job and log stores. tm and logger may be nil.
func NewSyncUseCase(
	jobs repository.SyncJobRepository,
	logs repository.SyncLogRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
	opts ...SyncOption,
) SyncUseCase {
	u := &syncUC{
		jobs:    jobs,
		logs:    logs,
		tm:      tm,
		lockTTL: 5 * time.Second,
		keys:    newKeyedMutex(),
		now:     time.Now,
		log:     logging.Component(logger, "SyncUC"),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *syncUC) CreateJob(ctx context.Context, in CreateJobInput) (*model.SyncJob, error) {
	job, err := model.NewSyncJob(uuid.NewString(), in.ObjectType, in.Source, in.RecordsTotal, in.MaxRetries, u.now())
	if err != nil {
		metrics.IncSyncRejection(rejectionReason(err))
		return nil, err
	}
	if err := u.jobs.Create(ctx, repository.NoTX, job); err != nil {
		metrics.IncSyncRejection(rejectionReason(err))
		return nil, fmt.Errorf("create job: %w", err)
	}

	logging.With(ctx, u.log).Info().
		Str("job_id", job.ID).
		Str("object_type", job.ObjectType.String()).
		Str("source", job.Source.String()).
		Int("records_total", job.RecordsTotal).
		Msg("sync job created")

	u.audit(ctx, job.ID, model.LogLevelInfo,
		fmt.Sprintf("%s created (%s, %d records)", job.Label(), job.Source, job.RecordsTotal),
		map[string]any{"to": string(job.Status), "max_retries": job.MaxRetries})
	return job, nil
}

func (u *syncUC) Transition(ctx context.Context, jobID string, ev model.Event) (*model.SyncJob, error) {
	defer logging.TraceDuration(u.log, "SyncUC.Transition")()

	if !ev.Type.Valid() {
		metrics.IncSyncRejection(rejectionReason(domain.ErrInvalidTransition))
		return nil, fmt.Errorf("unknown event %q: %w", ev.Type, domain.ErrInvalidTransition)
	}

	unlock, err := u.lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		from    model.SyncStatus
		updated *model.SyncJob
	)
	err = u.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		j, err := u.jobs.Update(ctx, tx, jobID, func(job *model.SyncJob) error {
			from = job.Status
			return applyEvent(job, ev, u.now())
		})
		updated = j
		return err
	})
	if err != nil {
		metrics.IncSyncRejection(rejectionReason(err))
		logging.With(ctx, u.log).Debug().Err(err).
			Str("job_id", jobID).Str("event", string(ev.Type)).
			Msg("sync transition rejected")
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}

	u.record(ctx, from, ev, updated)
	return updated, nil
}

func (u *syncUC) Requeue(ctx context.Context, jobID string) (*model.SyncJob, error) {
	return u.Transition(ctx, jobID, model.Retry())
}

func (u *syncUC) GetJob(ctx context.Context, jobID string) (*model.SyncJob, error) {
	j, err := u.jobs.Get(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return j, nil
}

func (u *syncUC) ListJobs(ctx context.Context, filter model.JobFilter) iter.Seq2[*model.SyncJob, error] {
	return u.jobs.List(ctx, repository.NoTX, filter)
}

func (u *syncUC) ListLogs(ctx context.Context, jobID string) iter.Seq2[*model.SyncLogEntry, error] {
	return u.logs.ListByJob(ctx, repository.NoTX, jobID)
}

// AppendLog records an entry written by an external collaborator (the sync
// worker or an admin). The job must exist at the time of writing.
func (u *syncUC) AppendLog(ctx context.Context, jobID string, level model.LogLevel, message string, details map[string]any) (*model.SyncLogEntry, error) {
	if !level.Valid() || strings.TrimSpace(message) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := u.jobs.Get(ctx, repository.NoTX, jobID); err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	entry := newLogEntry(jobID, level, message, details)
	if err := u.logs.Append(ctx, repository.NoTX, entry); err != nil {
		return nil, fmt.Errorf("append log: %w", err)
	}
	return entry.Clone(), nil
}

func (u *syncUC) Summary(ctx context.Context) (*model.JobSummary, error) {
	sum := &model.JobSummary{ByStatus: make(map[model.SyncStatus]int, len(model.AllSyncStatuses))}
	for _, st := range model.AllSyncStatuses {
		sum.ByStatus[st] = 0
	}
	for j, err := range u.jobs.List(ctx, repository.NoTX, model.JobFilter{}) {
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		sum.Total++
		sum.ByStatus[j.Status]++
	}
	return sum, nil
}

// lock serializes mutations of one job: always in-process, and across
// processes when a Locker is configured.
func (u *syncUC) lock(ctx context.Context, jobID string) (func(), error) {
	release := u.keys.Lock(jobID)
	if u.locker == nil {
		return release, nil
	}
	key := "sync:job:" + jobID
	token, err := u.locker.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		release()
		metrics.IncSyncRejection("lock")
		return nil, fmt.Errorf("job %s: %w", jobID, errors.Join(domain.ErrLockNotAcquired, err))
	}
	return func() {
		// the request ctx may already be cancelled; the lock must still go
		uctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := u.locker.Unlock(uctx, key, token); err != nil {
			u.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to release job lock")
		}
		release()
	}, nil
}

func (u *syncUC) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if u.tm == nil {
		return fn(ctx, repository.NoTX)
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

// record emits metrics, the service log line and the job's audit entry for
// an accepted transition.
func (u *syncUC) record(ctx context.Context, from model.SyncStatus, ev model.Event, job *model.SyncJob) {
	metrics.IncSyncTransition(string(ev.Type), string(job.Status))
	if job.Duration != nil && ev.Type != model.EventReportProgress {
		metrics.ObserveSyncDuration(string(job.ObjectType), string(job.Status), *job.Duration)
	}
	if ev.Type == model.EventRetry {
		metrics.IncSyncRequeue(string(job.ObjectType))
	}

	l := logging.With(ctx, u.log)
	evt := l.Info()
	if ev.Type == model.EventReportProgress {
		evt = l.Debug()
	}
	evt.Str("job_id", job.ID).
		Str("event", string(ev.Type)).
		Str("from", string(from)).
		Str("to", string(job.Status)).
		Int("records_processed", job.RecordsProcessed).
		Int("retry_count", job.RetryCount).
		Msg("sync job transition")

	level, msg := describe(ev, job)
	u.audit(ctx, job.ID, level, msg, map[string]any{
		"event":             string(ev.Type),
		"from":              string(from),
		"to":                string(job.Status),
		"records_processed": job.RecordsProcessed,
		"records_total":     job.RecordsTotal,
		"retry_count":       job.RetryCount,
	})
}

// audit appends to the job's log. Failures here never undo the transition.
func (u *syncUC) audit(ctx context.Context, jobID string, level model.LogLevel, msg string, details map[string]any) {
	if u.logs == nil {
		return
	}
	if err := u.logs.Append(ctx, repository.NoTX, newLogEntry(jobID, level, msg, details)); err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("job_id", jobID).Msg("failed to append sync log")
	}
}

func newLogEntry(jobID string, level model.LogLevel, msg string, details map[string]any) *model.SyncLogEntry {
	return &model.SyncLogEntry{
		ID:      ulid.Make().String(),
		JobID:   jobID,
		Level:   level,
		Message: msg,
		Details: details,
	}
}

func describe(ev model.Event, job *model.SyncJob) (model.LogLevel, string) {
	switch ev.Type {
	case model.EventStart:
		return model.LogLevelInfo, fmt.Sprintf("%s started", job.Label())
	case model.EventReportProgress:
		return model.LogLevelDebug, fmt.Sprintf("Processed %d/%d records (%.0f%%)",
			job.RecordsProcessed, job.RecordsTotal, model.ProgressPercent(job))
	case model.EventComplete:
		return model.LogLevelInfo, fmt.Sprintf("%s completed: %d records in %s",
			job.Label(), job.RecordsTotal, model.FormatDuration(*job.Duration))
	case model.EventFail, model.EventFailRecoverable:
		if job.Status == model.SyncStatusRetry {
			return model.LogLevelWarning, fmt.Sprintf("%s failed, retry %d/%d available: %s",
				job.Label(), job.RetryCount+1, job.MaxRetries, job.ErrorMessage)
		}
		return model.LogLevelError, fmt.Sprintf("%s failed: %s", job.Label(), job.ErrorMessage)
	case model.EventRetry:
		return model.LogLevelInfo, fmt.Sprintf("%s re-queued (retry %d/%d)", job.Label(), job.RetryCount, job.MaxRetries)
	}
	return model.LogLevelInfo, string(ev.Type)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrRetryBudgetExceeded):
		return "retry_budget"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	}
	return "other"
}
