package apiv1

import (
	"time"

	"event-companion-sync/internal/domain/model"
)

type Job struct {
	ID               string     `json:"id"`
	ObjectType       string     `json:"object_type"`
	Label            string     `json:"label"`
	Status           string     `json:"status"`
	Source           string     `json:"source"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Duration         *int64     `json:"duration,omitempty"`
	Elapsed          string     `json:"elapsed"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsTotal     int        `json:"records_total"`
	ProgressPercent  float64    `json:"progress_percent"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`
	CanRetry         bool       `json:"can_retry"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toJob(j *model.SyncJob, now time.Time) Job {
	return Job{
		ID:               j.ID,
		ObjectType:       string(j.ObjectType),
		Label:            j.Label(),
		Status:           string(j.Status),
		Source:           string(j.Source),
		StartTime:        j.StartTime,
		EndTime:          j.EndTime,
		Duration:         j.Duration,
		Elapsed:          model.FormatDuration(int64(model.Elapsed(j, now) / time.Second)),
		RecordsProcessed: j.RecordsProcessed,
		RecordsTotal:     j.RecordsTotal,
		ProgressPercent:  model.ProgressPercent(j),
		ErrorMessage:     j.ErrorMessage,
		RetryCount:       j.RetryCount,
		MaxRetries:       j.MaxRetries,
		CanRetry:         j.CanRetry(),
		UpdatedAt:        j.UpdatedAt,
	}
}

type LogEntry struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

func toLogEntry(e *model.SyncLogEntry) LogEntry {
	return LogEntry{
		ID:        e.ID,
		JobID:     e.JobID,
		Timestamp: e.Timestamp,
		Level:     string(e.Level),
		Message:   e.Message,
		Details:   e.Details,
	}
}

type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type createJobRequest struct {
	ObjectType   string `json:"object_type"`
	Source       string `json:"source"`
	RecordsTotal int    `json:"records_total"`
	MaxRetries   *int   `json:"max_retries"`
}

type eventRequest struct {
	Type    string `json:"type"`
	Records int    `json:"records"`
	Message string `json:"message"`
}

type appendLogRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type triggerRequest struct {
	ObjectType string `json:"object_type"`
}

type Schedule struct {
	ObjectType string     `json:"object_type"`
	Spec       string     `json:"spec"`
	Next       *time.Time `json:"next_run,omitempty"`
}
