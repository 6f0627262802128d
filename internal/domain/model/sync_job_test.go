//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"event-companion-sync/internal/domain"
)

func TestNewSyncJob(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	t.Run("should create a pending job", func(t *testing.T) {
		job, err := NewSyncJob("job-1", ObjectTypeSpeakers, SyncSourceManual, 45, 3, now)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if job.Status != SyncStatusPending || job.RecordsProcessed != 0 || job.RetryCount != 0 {
			t.Errorf("unexpected initial state: %+v", job)
		}
		if !job.StartTime.Equal(now) || job.EndTime != nil || job.Duration != nil {
			t.Errorf("unexpected timestamps: %+v", job)
		}
	})

	t.Run("should reject bad input", func(t *testing.T) {
		cases := []struct {
			name string
			id   string
			ot   ObjectType
			src  SyncSource
			tot  int
			max  int
		}{
			{"empty id", "", ObjectTypeAgenda, SyncSourceManual, 1, 3},
			{"unknown type", "j", "sponsors", SyncSourceManual, 1, 3},
			{"unknown source", "j", ObjectTypeAgenda, "ftp", 1, 3},
			{"negative total", "j", ObjectTypeAgenda, SyncSourceManual, -1, 3},
			{"negative retries", "j", ObjectTypeAgenda, SyncSourceManual, 1, -1},
		}
		for _, tc := range cases {
			if _, err := NewSyncJob(tc.id, tc.ot, tc.src, tc.tot, tc.max, now); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
			}
		}
	})
}

func TestSyncJob_Clone(t *testing.T) {
	end := time.Now()
	d := int64(12)
	job := &SyncJob{ID: "j", EndTime: &end, Duration: &d}

	cp := job.Clone()
	*cp.Duration = 99
	*cp.EndTime = end.Add(time.Hour)

	if *job.Duration != 12 || !job.EndTime.Equal(end) {
		t.Error("clone shares pointers with the original")
	}
	if (*SyncJob)(nil).Clone() != nil {
		t.Error("expected nil clone of nil job")
	}
}

func TestSyncJob_CanRetry(t *testing.T) {
	cases := []struct {
		status  SyncStatus
		retries int
		want    bool
	}{
		{SyncStatusFailed, 0, true},
		{SyncStatusRetry, 2, true},
		{SyncStatusFailed, 3, false},
		{SyncStatusRunning, 0, false},
		{SyncStatusSuccess, 0, false},
		{SyncStatusPending, 0, false},
	}
	for _, tc := range cases {
		j := &SyncJob{Status: tc.status, RetryCount: tc.retries, MaxRetries: 3}
		if got := j.CanRetry(); got != tc.want {
			t.Errorf("%s with %d retries: expected %v, got %v", tc.status, tc.retries, tc.want, got)
		}
	}
}

func TestSyncJob_CheckInvariants(t *testing.T) {
	ok := &SyncJob{RecordsProcessed: 45, RecordsTotal: 45, RetryCount: 3, MaxRetries: 3}
	if err := ok.CheckInvariants(); err != nil {
		t.Errorf("expected valid job, got %v", err)
	}
	for _, j := range []*SyncJob{
		{RecordsProcessed: 46, RecordsTotal: 45},
		{RecordsProcessed: -1, RecordsTotal: 45},
		{RetryCount: 4, MaxRetries: 3},
	} {
		if err := j.CheckInvariants(); !errors.Is(err, domain.ErrInvariantViolation) {
			t.Errorf("expected ErrInvariantViolation for %+v, got %v", j, err)
		}
	}
}

func TestParseEnums(t *testing.T) {
	t.Run("should normalise case and spaces", func(t *testing.T) {
		if st, err := ParseSyncStatus(" Running "); err != nil || st != SyncStatusRunning {
			t.Errorf("status: got %q, %v", st, err)
		}
		if ot, err := ParseObjectType("SPEAKERS"); err != nil || ot != ObjectTypeSpeakers {
			t.Errorf("object type: got %q, %v", ot, err)
		}
		if src, err := ParseSyncSource("scheduled"); err != nil || src != SyncSourceScheduled {
			t.Errorf("source: got %q, %v", src, err)
		}
		if lv, err := ParseLogLevel("warn"); err != nil || lv != LogLevelWarning {
			t.Errorf("level: got %q, %v", lv, err)
		}
		if ev, err := ParseEventType("fail_recoverable"); err != nil || ev != EventFailRecoverable {
			t.Errorf("event: got %q, %v", ev, err)
		}
	})

	t.Run("should reject unknown values", func(t *testing.T) {
		if _, err := ParseSyncStatus("cancelled"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("status: got %v", err)
		}
		if _, err := ParseObjectType(""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("object type: got %v", err)
		}
		if _, err := ParseLogLevel("fatal"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("level: got %v", err)
		}
	})
}

func TestJobFilter_Match(t *testing.T) {
	speakers := &SyncJob{ObjectType: ObjectTypeSpeakers, Status: SyncStatusRunning}
	agenda := &SyncJob{ObjectType: ObjectTypeAgenda, Status: SyncStatusFailed}

	cases := []struct {
		name   string
		filter JobFilter
		job    *SyncJob
		want   bool
	}{
		{"empty filter", JobFilter{}, agenda, true},
		{"status match", JobFilter{Status: SyncStatusRunning}, speakers, true},
		{"status miss", JobFilter{Status: SyncStatusRunning}, agenda, false},
		{"type match", JobFilter{ObjectType: ObjectTypeAgenda}, agenda, true},
		{"query on label", JobFilter{Query: "speak"}, speakers, true},
		{"query on display name", JobFilter{Query: "Agenda Sync"}, agenda, true},
		{"query on status", JobFilter{Query: "FAIL"}, agenda, true},
		{"query miss", JobFilter{Query: "exhib"}, agenda, false},
		{"combined", JobFilter{Status: SyncStatusFailed, Query: "speak"}, speakers, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(tc.job); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestSyncLogEntry(t *testing.T) {
	e := &SyncLogEntry{ID: "l", JobID: "j", Level: LogLevelInfo, Message: "started", Details: map[string]any{"n": 1}}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid entry, got %v", err)
	}
	cp := e.Clone()
	cp.Details["n"] = 2
	if e.Details["n"] != 1 {
		t.Error("clone shares details with the original")
	}
	for _, bad := range []*SyncLogEntry{
		nil,
		{ID: "l", JobID: "j", Level: LogLevelInfo, Message: " "},
		{ID: "l", JobID: "", Level: LogLevelInfo, Message: "x"},
		{ID: "l", JobID: "j", Level: "trace", Message: "x"},
	} {
		if err := bad.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for %+v, got %v", bad, err)
		}
	}
}
