package models

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
	ReportRejected ReportStatus = "rejected"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportApproved, ReportRejected:
		return true
	}
	return false
}

type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Review is recorded on a report once an operator decides it.
type Review struct {
	Decision   ReportStatus `json:"decision"`
	Notes      string       `json:"admin_notes"`
	ReviewedAt time.Time    `json:"reviewed_at"`
}

type SOSReport struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	ReporterRef   string       `json:"user_id" db:"user_id"`
	VideoRef      string       `json:"video_key" db:"video_key"`
	Message       string       `json:"message" db:"message"`
	Location      Location     `json:"location" db:"location"`
	SubmittedAt   time.Time    `json:"created_at" db:"created_at"`
	Status        ReportStatus `json:"status" db:"status"`
	Review        *Review      `json:"review,omitempty"`
	NotifiedCount int          `json:"notified_count" db:"notified_count"`
}

// Recipient is a user who can be reached by a fan-out notification.
type Recipient struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Notification is the message published on the fan-out stream, one per recipient.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	ReportID  uuid.UUID `json:"report_id"`
	Recipient Recipient `json:"recipient"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
