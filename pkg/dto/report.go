package dto

import "github.com/google/uuid"

type LocationResponse struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type ReviewResponse struct {
	Decision   string `json:"decision"`
	Notes      string `json:"admin_notes,omitempty"`
	ReviewedAt string `json:"reviewed_at"`
}

type ReportResponse struct {
	ID            uuid.UUID        `json:"id"`
	UserID        string           `json:"user_id"`
	Message       string           `json:"message,omitempty"`
	VideoKey      string           `json:"video_key,omitempty"`
	VideoURL      string           `json:"video_url,omitempty"`
	Location      LocationResponse `json:"location"`
	Status        string           `json:"status"`
	Review        *ReviewResponse  `json:"review,omitempty"`
	NotifiedCount int              `json:"notified_count"`
	CreatedAt     string           `json:"created_at"`
}

type ReportListResponse struct {
	Reports []ReportResponse `json:"reports"`
	Total   int              `json:"total"`
}

type ReportQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

type ReviewRequest struct {
	Notes string `json:"notes"`
}

// ReviewResult is returned by approve and reject. Partial is set when the
// decision was stored but not every nearby user could be notified.
type ReviewResult struct {
	Report       ReportResponse `json:"report"`
	AlreadyFinal bool           `json:"already_final"`
	Notified     int            `json:"notified"`
	Partial      bool           `json:"partial,omitempty"`
	Error        string         `json:"error,omitempty"`
}
