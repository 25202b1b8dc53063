package sos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
	"github.com/your-org/crowdwatch/internal/storage"
)

type Store interface {
	InsertReport(ctx context.Context, r *models.SOSReport) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.SOSReport, error)
	ListReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.SOSReport, error)
	ReviewReport(ctx context.Context, id uuid.UUID, decision models.ReportStatus, notes string, at time.Time) (*models.SOSReport, bool, error)
	SetNotifiedCount(ctx context.Context, id uuid.UUID, n int) error
}

type VideoStore interface {
	PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

type Notifier interface {
	NotifyNearby(ctx context.Context, report models.SOSReport) (int, error)
}

// Outcome describes a review call. AlreadyFinal is set when the report had
// already received the same decision, in which case nothing was changed.
type Outcome struct {
	Report       models.SOSReport
	AlreadyFinal bool
	Notified     int
}

// NewReport is an intake submission with its video stream.
type NewReport struct {
	ReporterRef string
	Message     string
	Location    models.Location
	Video       io.Reader
	VideoSize   int64
	ContentType string
}

type Service struct {
	store    Store
	videos   VideoStore
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, videos VideoStore, notifier Notifier) *Service {
	return &Service{store: store, videos: videos, notifier: notifier, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.SOSReport, error) {
	r, err := s.store.GetReport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SOSReport{}, ErrNotFound
	}
	if err != nil {
		return models.SOSReport{}, err
	}
	return *r, nil
}

func (s *Service) List(ctx context.Context, status models.ReportStatus, limit int) ([]models.SOSReport, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	return s.store.ListReports(ctx, status, limit)
}

// Approve marks a pending report approved and notifies nearby users.
// The approval stays committed when the fan-out fails; the caller gets the
// outcome together with a *PartialFailureError.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes string) (Outcome, error) {
	out, applied, err := s.review(ctx, id, models.ReportApproved, notes)
	if err != nil || !applied {
		return out, err
	}

	notified, ferr := s.notifier.NotifyNearby(ctx, out.Report)
	out.Notified = notified
	out.Report.NotifiedCount = notified
	if err := s.store.SetNotifiedCount(ctx, id, notified); err != nil {
		slog.Warn("record notified count", "report_id", id, "error", err)
	}
	if ferr != nil {
		observability.ReportTransitions.WithLabelValues(string(models.ReportApproved), "partial").Inc()
		slog.Error("sos fan-out failed", "report_id", id, "notified", notified, "error", ferr)
		return out, &PartialFailureError{ReportID: id, Notified: notified, Err: ferr}
	}
	return out, nil
}

// Reject marks a pending report rejected. No one is notified.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes string) (Outcome, error) {
	out, _, err := s.review(ctx, id, models.ReportRejected, notes)
	return out, err
}

func (s *Service) review(ctx context.Context, id uuid.UUID, decision models.ReportStatus, notes string) (Outcome, bool, error) {
	label := string(decision)

	report, applied, err := s.store.ReviewReport(ctx, id, decision, notes, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		observability.ReportTransitions.WithLabelValues(label, "not_found").Inc()
		return Outcome{}, false, ErrNotFound
	}
	if err != nil {
		observability.ReportTransitions.WithLabelValues(label, "error").Inc()
		return Outcome{}, false, fmt.Errorf("review report %s: %w", id, err)
	}

	out := Outcome{Report: *report, Notified: report.NotifiedCount}
	if !applied {
		if report.Status == decision {
			observability.ReportTransitions.WithLabelValues(label, "noop").Inc()
			out.AlreadyFinal = true
			return out, false, nil
		}
		observability.ReportTransitions.WithLabelValues(label, "conflict").Inc()
		return out, false, ErrAlreadyReviewed
	}

	observability.ReportTransitions.WithLabelValues(label, "applied").Inc()
	slog.Info("sos report reviewed", "report_id", id, "decision", decision)
	return out, true, nil
}

// Submit stores the video and records a pending report.
func (s *Service) Submit(ctx context.Context, in NewReport) (models.SOSReport, error) {
	if strings.TrimSpace(in.ReporterRef) == "" {
		return models.SOSReport{}, invalid("missing userId")
	}
	if err := validateLocation(in.Location); err != nil {
		return models.SOSReport{}, err
	}
	if in.Video == nil {
		return models.SOSReport{}, invalid("missing video")
	}

	now := s.now().UTC()
	key := VideoKey(in.ReporterRef, now)
	contentType := in.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	if err := s.videos.PutStream(ctx, key, in.Video, in.VideoSize, contentType); err != nil {
		return models.SOSReport{}, fmt.Errorf("upload sos video: %w", err)
	}

	report := models.SOSReport{
		ID:          uuid.New(),
		ReporterRef: in.ReporterRef,
		VideoRef:    key,
		Message:     in.Message,
		Location:    in.Location,
		SubmittedAt: now,
		Status:      models.ReportPending,
	}
	if err := s.store.InsertReport(ctx, &report); err != nil {
		if derr := s.videos.DeleteObject(context.WithoutCancel(ctx), key); derr != nil {
			slog.Warn("remove orphaned sos video", "key", key, "error", derr)
		}
		return models.SOSReport{}, fmt.Errorf("store sos report: %w", err)
	}

	slog.Info("sos report submitted", "report_id", report.ID, "user_id", report.ReporterRef)
	return report, nil
}

// Create records a report that arrives as a document with its video
// already uploaded.
func (s *Service) Create(ctx context.Context, report models.SOSReport) (models.SOSReport, error) {
	report.Status = models.ReportPending
	report.Review = nil
	report.NotifiedCount = 0
	if err := s.store.InsertReport(ctx, &report); err != nil {
		return models.SOSReport{}, fmt.Errorf("store sos report: %w", err)
	}
	return report, nil
}

// VideoKey names an uploaded SOS video.
func VideoKey(userID string, at time.Time) string {
	return fmt.Sprintf("sos-videos/sos_%s_%d.mp4", sanitizeKey(userID), at.UnixMilli())
}

func sanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
