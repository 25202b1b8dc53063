// Package sos implements the review workflow for user-submitted SOS reports.
package sos

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
)

var (
	ErrNotFound        = errors.New("sos report not found")
	ErrAlreadyReviewed = errors.New("sos report already reviewed with a different decision")
	ErrInvalidReport   = errors.New("invalid sos report")
)

// PartialFailureError means the review decision was stored but the fan-out
// to nearby users did not fully succeed.
type PartialFailureError struct {
	ReportID uuid.UUID
	Notified int
	Err      error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("report %s approved but fan-out incomplete (%d queued): %v", e.ReportID, e.Notified, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReport, fmt.Sprintf(format, args...))
}

// Parse converts a raw report document (as produced by the mobile client)
// into a report. It fails on a missing id, userId or location and treats an
// absent status as pending. A document without createdAt is stamped with
// receivedAt.
func Parse(doc map[string]any, receivedAt time.Time) (models.SOSReport, error) {
	var r models.SOSReport

	idStr, _ := doc["id"].(string)
	if idStr == "" {
		return r, invalid("missing id")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return r, invalid("id %q is not a uuid", idStr)
	}
	r.ID = id

	r.ReporterRef, _ = doc["userId"].(string)
	if strings.TrimSpace(r.ReporterRef) == "" {
		return r, invalid("missing userId")
	}

	loc, err := parseLocation(doc["location"])
	if err != nil {
		return r, err
	}
	r.Location = loc

	r.Message, _ = doc["message"].(string)
	r.VideoRef, _ = doc["videoUrl"].(string)

	r.Status = models.ReportPending
	if s, ok := doc["status"].(string); ok && s != "" {
		r.Status = models.ReportStatus(s)
		if !r.Status.Valid() {
			return r, invalid("unknown status %q", s)
		}
	}

	r.SubmittedAt = receivedAt.UTC()
	if ts, ok := doc["createdAt"].(string); ok && ts != "" {
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return r, invalid("createdAt %q is not RFC3339", ts)
		}
		r.SubmittedAt = at.UTC()
	}

	if rv, ok := doc["adminReview"].(map[string]any); ok {
		review := &models.Review{}
		decision, _ := rv["decision"].(string)
		review.Decision = models.ReportStatus(decision)
		review.Notes, _ = rv["adminNotes"].(string)
		if ts, ok := rv["reviewedAt"].(string); ok && ts != "" {
			at, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return r, invalid("adminReview.reviewedAt %q is not RFC3339", ts)
			}
			review.ReviewedAt = at.UTC()
		}
		r.Review = review
	}

	return r, nil
}

func parseLocation(v any) (models.Location, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return models.Location{}, invalid("missing location")
	}
	lat, latOK := toFloat(m["latitude"])
	lon, lonOK := toFloat(m["longitude"])
	if !latOK || !lonOK {
		return models.Location{}, invalid("location needs numeric latitude and longitude")
	}
	loc := models.Location{Latitude: lat, Longitude: lon}
	if err := validateLocation(loc); err != nil {
		return loc, err
	}
	if acc, ok := toFloat(m["accuracy"]); ok {
		loc.Accuracy = &acc
	}
	return loc, nil
}

func validateLocation(loc models.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return invalid("location out of range: %f,%f", loc.Latitude, loc.Longitude)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
