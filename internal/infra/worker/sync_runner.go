package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/domain/ports/adapter"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/usecase"
)

// SyncRunner plays the external sync worker: it pulls records from a
// ContentSource in batches and reports every step through the use case.
type SyncRunner struct {
	syncUC      usecase.SyncUseCase
	source      adapter.ContentSource
	pool        *Pool
	batchSize   int
	autoRequeue time.Duration
	maxRetries  int
	log         *zerolog.Logger
}

type RunnerOption func(*SyncRunner)

// WithAutoRequeue requeues jobs that land in retry after the given delay.
func WithAutoRequeue(delay time.Duration) RunnerOption {
	return func(r *SyncRunner) { r.autoRequeue = delay }
}

func NewSyncRunner(syncUC usecase.SyncUseCase, source adapter.ContentSource, pool *Pool, batchSize, maxRetries int, logger *zerolog.Logger, opts ...RunnerOption) *SyncRunner {
	if batchSize <= 0 {
		batchSize = 10
	}
	r := &SyncRunner{
		syncUC:     syncUC,
		source:     source,
		pool:       pool,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		log:        logging.Component(logger, "SyncRunner"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Trigger counts the pending records, creates a job for them and queues it.
func (r *SyncRunner) Trigger(ctx context.Context, objectType model.ObjectType, src model.SyncSource) (*model.SyncJob, error) {
	total, err := r.source.Count(ctx, objectType)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", objectType, err)
	}
	job, err := r.syncUC.CreateJob(ctx, usecase.CreateJobInput{
		ObjectType:   objectType,
		Source:       src,
		RecordsTotal: total,
		MaxRetries:   r.maxRetries,
	})
	if err != nil {
		return nil, err
	}
	if err := r.dispatch(ctx, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// dispatch queues a pending job. When the pool refuses it the job is started
// and failed as recoverable, so it leaves pending and does not hold its
// object type busy.
func (r *SyncRunner) dispatch(ctx context.Context, jobID string) error {
	err := r.Enqueue(jobID)
	if err == nil {
		return nil
	}
	wctx := context.WithoutCancel(ctx)
	job, serr := r.syncUC.Transition(wctx, jobID, model.Start())
	if serr != nil {
		return errors.Join(err, serr)
	}
	if _, ferr := r.fail(ctx, job, fmt.Errorf("%w: not queued: %v", adapter.ErrRecoverable, err)); ferr != nil {
		return ferr
	}
	return err
}

// Enqueue hands the job to the pool.
func (r *SyncRunner) Enqueue(jobID string) error {
	return r.pool.Submit(func(ctx context.Context) error {
		_, err := r.Run(ctx, jobID)
		return err
	})
}

// Run drives one attempt of a pending job to a terminal or retry state and
// returns the job as last stored.
func (r *SyncRunner) Run(ctx context.Context, jobID string) (*model.SyncJob, error) {
	ctx = logging.WithJobID(ctx, jobID)
	l := logging.With(ctx, r.log)

	job, err := r.syncUC.Transition(ctx, jobID, model.Start())
	if err != nil {
		return nil, err
	}
	l.Info().Str("object_type", string(job.ObjectType)).Int("records_total", job.RecordsTotal).Msg("sync attempt started")

	for job.RecordsProcessed < job.RecordsTotal {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, job, fmt.Errorf("%w: %v", adapter.ErrRecoverable, err))
		}
		batch, err := r.source.FetchBatch(ctx, job.ObjectType, job.RecordsProcessed, r.batchSize)
		if err != nil {
			return r.fail(ctx, job, err)
		}
		if batch.Records > 0 {
			if job, err = r.syncUC.Transition(ctx, jobID, model.ReportProgress(batch.Records)); err != nil {
				return nil, err
			}
		}
		if batch.Done || batch.Records == 0 {
			break
		}
	}

	if job.RecordsProcessed < job.RecordsTotal {
		return r.fail(ctx, job, fmt.Errorf("source ended at %d of %d records", job.RecordsProcessed, job.RecordsTotal))
	}
	job, err = r.syncUC.Transition(ctx, jobID, model.Complete())
	if err != nil {
		return nil, err
	}
	l.Info().Msg("sync attempt completed")
	return job, nil
}

func (r *SyncRunner) fail(ctx context.Context, job *model.SyncJob, cause error) (*model.SyncJob, error) {
	ev := model.Fail(cause.Error())
	if errors.Is(cause, adapter.ErrRecoverable) {
		ev = model.FailRecoverable(cause.Error())
	}
	// a cancelled ctx must not stop the failure from being recorded
	wctx := context.WithoutCancel(ctx)
	updated, err := r.syncUC.Transition(wctx, job.ID, ev)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	logging.With(ctx, r.log).Warn().Err(cause).Str("status", string(updated.Status)).Msg("sync attempt failed")

	if updated.Status == model.SyncStatusRetry && r.autoRequeue > 0 && ctx.Err() == nil {
		r.scheduleRequeue(ctx, updated.ID)
	}
	return updated, nil
}

func (r *SyncRunner) scheduleRequeue(ctx context.Context, jobID string) {
	time.AfterFunc(r.autoRequeue, func() {
		// the job stays in retry for an admin once the runner is shutting down
		if ctx.Err() != nil || r.pool.Stopped() {
			return
		}
		if _, err := r.syncUC.Requeue(ctx, jobID); err != nil {
			if !errors.Is(err, domain.ErrRetryBudgetExceeded) {
				r.log.Error().Err(err).Str("job_id", jobID).Msg("auto requeue failed")
			}
			return
		}
		if err := r.dispatch(ctx, jobID); err != nil {
			r.log.Error().Err(err).Str("job_id", jobID).Msg("could not enqueue requeued job")
		}
	})
}
