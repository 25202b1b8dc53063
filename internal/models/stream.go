package models

import "time"

type CameraStatus string

const (
	CameraStatusStopped  CameraStatus = "stopped"
	CameraStatusStarting CameraStatus = "starting"
	CameraStatusRunning  CameraStatus = "running"
	CameraStatusError    CameraStatus = "error"
)

// CameraState describes the capture process feeding the monitor.
type CameraState struct {
	Source       string       `json:"source"`
	Status       CameraStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	LastFrameAt  *time.Time   `json:"last_frame_at,omitempty"`
}
