package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/infra/logging"
	"event-companion-sync/internal/infra/metrics"
	"event-companion-sync/internal/usecase"
)

// SyncPoller periodically reads every job and refreshes the monitor gauges.
// It never mutates jobs: an overdue running job is reported, not failed.
type SyncPoller struct {
	interval     time.Duration
	overdueAfter time.Duration
	syncUC       usecase.SyncUseCase
	onTick       []func(ctx context.Context)
	now          func() time.Time
	log          *zerolog.Logger
}

func NewSyncPoller(interval, overdueAfter time.Duration, syncUC usecase.SyncUseCase, logger *zerolog.Logger) *SyncPoller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &SyncPoller{
		interval:     interval,
		overdueAfter: overdueAfter,
		syncUC:       syncUC,
		now:          time.Now,
		log:          logging.Component(logger, "SyncPoller"),
	}
}

// OnTick registers an extra callback run after every poll (pool stats and the like).
func (p *SyncPoller) OnTick(fn func(ctx context.Context)) {
	p.onTick = append(p.onTick, fn)
}

func (p *SyncPoller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("Starting sync poller")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Stopping sync poller")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				p.log.Error().Err(err).Msg("sync poll failed")
			}
			for _, fn := range p.onTick {
				fn(ctx)
			}
		}
	}
}

// PollResult is what one poll observed.
type PollResult struct {
	ByStatus map[model.SyncStatus]int
	Running  []metrics.JobProgress
	Overdue  []string
}

// Poll takes one snapshot of the job set and publishes it.
func (p *SyncPoller) Poll(ctx context.Context) (*PollResult, error) {
	now := p.now()
	res := &PollResult{ByStatus: make(map[model.SyncStatus]int, len(model.AllSyncStatuses))}
	for _, st := range model.AllSyncStatuses {
		res.ByStatus[st] = 0
	}

	for j, err := range p.syncUC.ListJobs(ctx, model.JobFilter{}) {
		if err != nil {
			return nil, err
		}
		res.ByStatus[j.Status]++
		if j.Status != model.SyncStatusRunning {
			continue
		}
		res.Running = append(res.Running, metrics.JobProgress{
			JobID:      j.ID,
			ObjectType: string(j.ObjectType),
			Percent:    model.ProgressPercent(j),
		})
		if model.IsOverdue(j, now, p.overdueAfter) {
			res.Overdue = append(res.Overdue, j.ID)
			p.log.Warn().
				Str("job_id", j.ID).
				Str("object_type", string(j.ObjectType)).
				Dur("elapsed", model.Elapsed(j, now)).
				Int("records_processed", j.RecordsProcessed).
				Int("records_total", j.RecordsTotal).
				Msg("sync job overdue")
		}
	}

	counts := make(map[string]int, len(res.ByStatus))
	for st, n := range res.ByStatus {
		counts[string(st)] = n
	}
	metrics.SetSyncJobsByStatus(counts)
	metrics.SetRunningProgress(res.Running)
	metrics.SetOverdueJobs(len(res.Overdue))
	return res, nil
}
