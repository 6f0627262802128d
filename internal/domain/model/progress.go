package model

import (
	"fmt"
	"strings"
	"time"
)

// Display helpers for the monitor and metrics exporters. None of them
// mutate the job they are given.

// ProgressPercent returns processed/total as a percentage in [0, 100].
func ProgressPercent(j *SyncJob) float64 {
	if j == nil || j.RecordsTotal <= 0 {
		return 0
	}
	return float64(j.RecordsProcessed) / float64(j.RecordsTotal) * 100
}

// Elapsed is the stored duration for ended attempts and the time since
// StartTime for attempts still in flight.
func Elapsed(j *SyncJob, now time.Time) time.Duration {
	if j.Duration != nil {
		return time.Duration(*j.Duration) * time.Second
	}
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	if d := now.Sub(j.StartTime); d > 0 {
		return d
	}
	return 0
}

// IsOverdue reports a running job whose attempt has been open longer than threshold.
func IsOverdue(j *SyncJob, now time.Time, threshold time.Duration) bool {
	if j == nil || j.Status != SyncStatusRunning || threshold <= 0 {
		return false
	}
	return now.Sub(j.StartTime) > threshold
}

// FormatDuration renders whole seconds as "45s", "3m 12s" or "1h 2m".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// Label turns an object type into the monitor's display name ("Speakers Sync").
func Label(o ObjectType) string {
	s := string(o)
	if s == "" {
		return "Sync"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Sync"
}

// NextUpdatedAt is the UpdatedAt stamp for a write following prev: now at
// microsecond precision (what Postgres keeps), strictly after prev.
func NextUpdatedAt(prev, now time.Time) time.Time {
	ts := now.Truncate(time.Microsecond)
	if !ts.After(prev) {
		ts = prev.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return ts
}
