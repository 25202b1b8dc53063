package dto

// AlertRequest is the body of POST /api/alert/stampede.
type AlertRequest struct {
	Message      string `json:"message"`
	CrowdDensity *int   `json:"crowdDensity"`
	Timestamp    string `json:"timestamp"`
}

type AlertResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// WSMessage is a WebSocket message pushed to console clients.
type WSMessage struct {
	Type string `json:"type"` // monitor_status, sos_snapshot, sos_update
	Data any    `json:"data,omitempty"`
}
