package importjob

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
)

type EventType string

const (
	EventConnected       EventType = "connected"
	EventStatus          EventType = "status"
	EventDone            EventType = "done"
	EventError           EventType = "error"
	EventCancelRequested EventType = "cancel_requested"
	EventCancelled       EventType = "cancelled"
)

// IsFinal reports whether no further events follow for the job.
func (t EventType) IsFinal() bool {
	return t == EventDone || t == EventError || t == EventCancelled
}

type Stage string

const (
	StageReading       Stage = "reading"
	StageIntrospecting Stage = "introspecting"
	StageLoading       Stage = "loading"
	StageRecording     Stage = "recording"
)

type Event struct {
	Type    EventType         `json:"type"`
	JobID   uuid.UUID         `json:"jobId"`
	Status  Status            `json:"status,omitempty"`
	Stage   Stage             `json:"stage,omitempty"`
	Result  *importrun.Result `json:"result,omitempty"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}

// FinalEvent rebuilds the closing event of a terminal job from its stored
// state. ok is false while the job is still pending or running.
func FinalEvent(job *ImportJob) (Event, bool) {
	ev := Event{JobID: job.ID, Status: job.Status, Result: job.Result, At: time.Now()}
	switch job.Status {
	case StatusSuccess:
		ev.Type = EventDone
	case StatusFailed:
		ev.Type = EventError
	case StatusCancelled:
		ev.Type = EventCancelled
	default:
		return Event{}, false
	}
	if job.FinishedAt != nil {
		ev.At = *job.FinishedAt
	}
	if job.ErrorMessage != nil {
		ev.Message = *job.ErrorMessage
	}
	return ev, true
}
