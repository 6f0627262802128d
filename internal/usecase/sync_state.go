package usecase

import (
	"fmt"
	"strings"
	"time"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/model"
)

// applyEvent moves job through the lifecycle table in place. On error the
// caller discards job, so partial writes before a failing check are fine.
//
//	pending  --start-->            running
//	running  --progress(n)-->      running   (processed clamped to total)
//	running  --complete-->         success   (processed must equal total)
//	running  --fail-->             failed
//	running  --fail_recoverable--> retry     (failed once the budget is spent)
//	failed|retry --retry-->        pending   (retryCount < maxRetries)
func applyEvent(job *model.SyncJob, ev model.Event, now time.Time) error {
	switch ev.Type {
	case model.EventStart:
		if job.Status != model.SyncStatusPending {
			return invalidTransition(job.Status, ev.Type)
		}
		job.Status = model.SyncStatusRunning

	case model.EventReportProgress:
		if job.Status != model.SyncStatusRunning {
			return invalidTransition(job.Status, ev.Type)
		}
		if ev.Records < 0 {
			return fmt.Errorf("negative progress %d: %w", ev.Records, domain.ErrInvariantViolation)
		}
		job.RecordsProcessed = min(job.RecordsProcessed+ev.Records, job.RecordsTotal)

	case model.EventComplete:
		if job.Status != model.SyncStatusRunning {
			return invalidTransition(job.Status, ev.Type)
		}
		if job.RecordsProcessed != job.RecordsTotal {
			return fmt.Errorf("complete with %d/%d records processed: %w",
				job.RecordsProcessed, job.RecordsTotal, domain.ErrInvariantViolation)
		}
		job.Status = model.SyncStatusSuccess
		finishAttempt(job, now)

	case model.EventFail, model.EventFailRecoverable:
		if job.Status != model.SyncStatusRunning {
			return invalidTransition(job.Status, ev.Type)
		}
		msg := strings.TrimSpace(ev.Message)
		if msg == "" {
			return fmt.Errorf("failure without message: %w", domain.ErrInvalidArgument)
		}
		job.Status = model.SyncStatusFailed
		if ev.Type == model.EventFailRecoverable && job.RetryCount < job.MaxRetries {
			job.Status = model.SyncStatusRetry
		}
		job.ErrorMessage = msg
		finishAttempt(job, now)

	case model.EventRetry:
		if job.Status != model.SyncStatusFailed && job.Status != model.SyncStatusRetry {
			return invalidTransition(job.Status, ev.Type)
		}
		if job.RetryCount >= job.MaxRetries {
			return fmt.Errorf("job already retried %d/%d times: %w",
				job.RetryCount, job.MaxRetries, domain.ErrRetryBudgetExceeded)
		}
		job.RetryCount++
		job.Status = model.SyncStatusPending
		job.RecordsProcessed = 0
		job.StartTime = now
		job.EndTime = nil
		job.Duration = nil
		job.ErrorMessage = ""

	default:
		return fmt.Errorf("unknown event %q: %w", ev.Type, domain.ErrInvalidTransition)
	}
	return job.CheckInvariants()
}

func finishAttempt(job *model.SyncJob, now time.Time) {
	end := now
	secs := int64(end.Sub(job.StartTime) / time.Second)
	if secs < 0 {
		secs = 0
	}
	job.EndTime = &end
	job.Duration = &secs
}

func invalidTransition(from model.SyncStatus, ev model.EventType) error {
	return fmt.Errorf("%s from %s: %w", ev, from, domain.ErrInvalidTransition)
}
