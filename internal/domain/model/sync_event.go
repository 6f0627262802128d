package model

import (
	"strings"

	"event-companion-sync/internal/domain"
)

type EventType string

const (
	EventStart           EventType = "start"
	EventReportProgress  EventType = "progress"
	EventComplete        EventType = "complete"
	EventFail            EventType = "fail"
	EventFailRecoverable EventType = "fail_recoverable"
	EventRetry           EventType = "retry"
)

func (e EventType) Valid() bool {
	switch e {
	case EventStart, EventReportProgress, EventComplete, EventFail, EventFailRecoverable, EventRetry:
		return true
	}
	return false
}

func ParseEventType(s string) (EventType, error) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return e, nil
}

// Event is a request to move a job through its lifecycle. Records is only
// read for progress events and Message only for failures.
type Event struct {
	Type    EventType
	Records int
	Message string
}

func Start() Event                     { return Event{Type: EventStart} }
func ReportProgress(n int) Event       { return Event{Type: EventReportProgress, Records: n} }
func Complete() Event                  { return Event{Type: EventComplete} }
func Fail(msg string) Event            { return Event{Type: EventFail, Message: msg} }
func FailRecoverable(msg string) Event { return Event{Type: EventFailRecoverable, Message: msg} }
func Retry() Event                     { return Event{Type: EventRetry} }
