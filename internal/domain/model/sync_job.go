package model

import (
	"strings"
	"time"

	"event-companion-sync/internal/domain"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
	SyncStatusRetry   SyncStatus = "retry" // failed attempt waiting for a requeue
)

// AllSyncStatuses lists statuses in the order the monitor displays them.
var AllSyncStatuses = []SyncStatus{
	SyncStatusPending, SyncStatusRunning, SyncStatusSuccess, SyncStatusFailed, SyncStatusRetry,
}

func (s SyncStatus) String() string { return string(s) }

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusRunning, SyncStatusSuccess, SyncStatusFailed, SyncStatusRetry:
		return true
	}
	return false
}

func ParseSyncStatus(s string) (SyncStatus, error) {
	st := SyncStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return st, nil
}

// ObjectType is the category of data pulled from the content source.
type ObjectType string

const (
	ObjectTypeAgenda     ObjectType = "agenda"
	ObjectTypeSpeakers   ObjectType = "speakers"
	ObjectTypeExhibitors ObjectType = "exhibitors"
	ObjectTypeUsers      ObjectType = "users"
	ObjectTypeContent    ObjectType = "content"
)

var AllObjectTypes = []ObjectType{
	ObjectTypeAgenda, ObjectTypeSpeakers, ObjectTypeExhibitors, ObjectTypeUsers, ObjectTypeContent,
}

func (o ObjectType) String() string { return string(o) }

func (o ObjectType) Valid() bool {
	switch o {
	case ObjectTypeAgenda, ObjectTypeSpeakers, ObjectTypeExhibitors, ObjectTypeUsers, ObjectTypeContent:
		return true
	}
	return false
}

func ParseObjectType(s string) (ObjectType, error) {
	o := ObjectType(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return o, nil
}

// SyncSource tells who triggered a job.
type SyncSource string

const (
	SyncSourceWordPressPush SyncSource = "wordpress_push"
	SyncSourceManual        SyncSource = "manual"
	SyncSourceScheduled     SyncSource = "scheduled"
)

func (s SyncSource) String() string { return string(s) }

func (s SyncSource) Valid() bool {
	switch s {
	case SyncSourceWordPressPush, SyncSourceManual, SyncSourceScheduled:
		return true
	}
	return false
}

func ParseSyncSource(s string) (SyncSource, error) {
	src := SyncSource(strings.ToLower(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return src, nil
}

// SyncJob is one attempt (plus its retries) to pull a batch of records of a
// single object type from the content source.
type SyncJob struct {
	ID               string
	ObjectType       ObjectType
	Status           SyncStatus
	Source           SyncSource
	StartTime        time.Time
	EndTime          *time.Time // set once the attempt ended
	Duration         *int64     // whole seconds between StartTime and EndTime
	RecordsProcessed int
	RecordsTotal     int
	ErrorMessage     string
	RetryCount       int
	MaxRetries       int
	UpdatedAt        time.Time
}

// NewSyncJob validates and constructs a pending job.
func NewSyncJob(id string, objectType ObjectType, source SyncSource, recordsTotal, maxRetries int, now time.Time) (*SyncJob, error) {
	if id == "" || !objectType.Valid() || !source.Valid() || recordsTotal < 0 || maxRetries < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SyncJob{
		ID:           id,
		ObjectType:   objectType,
		Status:       SyncStatusPending,
		Source:       source,
		StartTime:    now,
		RecordsTotal: recordsTotal,
		MaxRetries:   maxRetries,
		UpdatedAt:    now,
	}, nil
}

func (j *SyncJob) IsZero() bool { return j == nil || j.ID == "" }

// Clone returns a deep copy so stored records never alias caller memory.
func (j *SyncJob) Clone() *SyncJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	if j.Duration != nil {
		d := *j.Duration
		cp.Duration = &d
	}
	return &cp
}

// CanRetry reports whether a requeue is allowed right now.
func (j *SyncJob) CanRetry() bool {
	return (j.Status == SyncStatusFailed || j.Status == SyncStatusRetry) && j.RetryCount < j.MaxRetries
}

// Label is the display name used by the monitor and by free-text filters.
func (j *SyncJob) Label() string { return Label(j.ObjectType) }

// CheckInvariants reports ErrInvariantViolation when counters are out of range.
func (j *SyncJob) CheckInvariants() error {
	if j.RecordsProcessed < 0 || j.RecordsTotal < 0 || j.RecordsProcessed > j.RecordsTotal {
		return domain.ErrInvariantViolation
	}
	if j.RetryCount < 0 || j.MaxRetries < 0 || j.RetryCount > j.MaxRetries {
		return domain.ErrInvariantViolation
	}
	return nil
}

// JobFilter narrows a job listing. Zero values match everything.
type JobFilter struct {
	Status     SyncStatus
	ObjectType ObjectType
	Query      string
}

// Match reports whether job satisfies every set field of the filter.
func (f JobFilter) Match(j *SyncJob) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.ObjectType != "" && j.ObjectType != f.ObjectType {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(j.Label()), q) ||
		strings.Contains(string(j.Status), q)
}

// JobSummary backs the counters at the top of the sync monitor.
type JobSummary struct {
	Total    int
	ByStatus map[SyncStatus]int
}
