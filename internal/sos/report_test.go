package sos

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/crowdwatch/internal/models"
)

var received = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

func validDoc() map[string]any {
	return map[string]any{
		"id":       "5b8f0a52-2f0e-4c55-9a52-8d8f6b0f3a10",
		"userId":   "user-42",
		"message":  "stampede near gate",
		"videoUrl": "sos-videos/sos_user-42_1700000000000.mp4",
		"location": map[string]any{
			"latitude":  28.6315,
			"longitude": 77.2167,
			"accuracy":  12.5,
		},
		"createdAt": "2025-03-01T12:00:00Z",
	}
}

func TestParse_Valid(t *testing.T) {
	r, err := Parse(validDoc(), received)
	require.NoError(t, err)

	assert.Equal(t, "5b8f0a52-2f0e-4c55-9a52-8d8f6b0f3a10", r.ID.String())
	assert.Equal(t, "user-42", r.ReporterRef)
	assert.Equal(t, models.ReportPending, r.Status)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), r.SubmittedAt)
	require.NotNil(t, r.Location.Accuracy)
	assert.Equal(t, 12.5, *r.Location.Accuracy)
	assert.Nil(t, r.Review)
}

func TestParse_KeepsReview(t *testing.T) {
	doc := validDoc()
	doc["status"] = "approved"
	doc["adminReview"] = map[string]any{
		"decision":   "approved",
		"adminNotes": "verified on cctv",
		"reviewedAt": "2025-03-01T12:05:00Z",
	}

	r, err := Parse(doc, received)
	require.NoError(t, err)
	assert.Equal(t, models.ReportApproved, r.Status)
	require.NotNil(t, r.Review)
	assert.Equal(t, "verified on cctv", r.Review.Notes)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC), r.Review.ReviewedAt)
}

func TestParse_MissingCreatedAtUsesReceivedTime(t *testing.T) {
	doc := validDoc()
	delete(doc, "createdAt")

	r, err := Parse(doc, received.In(time.FixedZone("IST", 5*3600+1800)))
	require.NoError(t, err)
	assert.Equal(t, received, r.SubmittedAt)
	assert.Equal(t, time.UTC, r.SubmittedAt.Location())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing id", func(d map[string]any) { delete(d, "id") }},
		{"bad id", func(d map[string]any) { d["id"] = "nope" }},
		{"missing user", func(d map[string]any) { delete(d, "userId") }},
		{"missing location", func(d map[string]any) { delete(d, "location") }},
		{"string latitude", func(d map[string]any) {
			d["location"] = map[string]any{"latitude": "28.6", "longitude": 77.2}
		}},
		{"latitude out of range", func(d map[string]any) {
			d["location"] = map[string]any{"latitude": 128.6, "longitude": 77.2}
		}},
		{"unknown status", func(d map[string]any) { d["status"] = "escalated" }},
		{"bad createdAt", func(d map[string]any) { d["createdAt"] = "yesterday" }},
		{"bad reviewedAt", func(d map[string]any) {
			d["adminReview"] = map[string]any{"decision": "approved", "reviewedAt": "03/01/2025"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)
			_, err := Parse(doc, received)
			assert.True(t, errors.Is(err, ErrInvalidReport), "got %v", err)
		})
	}
}
