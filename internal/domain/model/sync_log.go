package model

import (
	"maps"
	"strings"
	"time"

	"event-companion-sync/internal/domain"
)

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelDebug   LogLevel = "debug"
)

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelDebug:
		return true
	}
	return false
}

func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l == "warn" {
		l = LogLevelWarning
	}
	if !l.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return l, nil
}

// SyncLogEntry is one line of a job's audit trail. Entries are immutable
// once appended; JobID is a weak reference.
type SyncLogEntry struct {
	ID        string
	JobID     string
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Details   map[string]any
}

// Validate checks the fields a log store requires.
func (e *SyncLogEntry) Validate() error {
	if e == nil || e.ID == "" || e.JobID == "" || strings.TrimSpace(e.Message) == "" || !e.Level.Valid() {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (e *SyncLogEntry) Clone() *SyncLogEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Details != nil {
		cp.Details = maps.Clone(e.Details)
	}
	return &cp
}
