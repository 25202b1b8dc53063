package models

import (
	"time"

	"github.com/google/uuid"
)

// DetectionSample is the person count observed in one frame.
type DetectionSample struct {
	Count      int       `json:"count"`
	CapturedAt time.Time `json:"captured_at"`
}

// AlertEvent is emitted by the cooldown gate when a critical sample opens a window.
type AlertEvent struct {
	ID          uuid.UUID `json:"id"`
	CameraID    string    `json:"camera_id"`
	Severity    string    `json:"severity"` // always "critical"
	PeopleCount int       `json:"people_count"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
	SnapshotKey string    `json:"snapshot_key,omitempty"` // MinIO key of the archived frame
}

// ActivityRecord is one entry of the monitor's activity log.
type ActivityRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}
