package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle event types published to Kafka.
const (
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
	EventJobFailed   = "job.failed"
	EventJobCanceled = "job.canceled"
)

// JobEvent is a lifecycle notification for downstream consumers.
type JobEvent struct {
	// EventID uniquely identifies this event for consumer-side dedup.
	EventID uuid.UUID `json:"event_id"`

	// EventType is one of the EventJob* constants.
	EventType string `json:"event_type"`

	// JobID is the internal job identifier.
	JobID uuid.UUID `json:"job_id"`

	// TrackingID is the externally exposed job identifier.
	TrackingID uuid.UUID `json:"tracking_id"`

	UserID string `json:"user_id"`
	Topic  string `json:"topic"`

	// Payload carries event-specific details (counters, error message).
	Payload map[string]interface{} `json:"payload,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
