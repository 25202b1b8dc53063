package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/sos"
	"github.com/your-org/crowdwatch/pkg/dto"
)

const maxVideoSize = 100 << 20

type reviewService interface {
	Get(ctx context.Context, id uuid.UUID) (models.SOSReport, error)
	List(ctx context.Context, status models.ReportStatus, limit int) ([]models.SOSReport, error)
	Approve(ctx context.Context, id uuid.UUID, notes string) (sos.Outcome, error)
	Reject(ctx context.Context, id uuid.UUID, notes string) (sos.Outcome, error)
	Submit(ctx context.Context, in sos.NewReport) (models.SOSReport, error)
	Create(ctx context.Context, report models.SOSReport) (models.SOSReport, error)
}

type pendingSource interface {
	Pending() []models.SOSReport
}

type presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type ReportHandler struct {
	reviews reviewService
	pending pendingSource
	videos  presigner
	expiry  time.Duration
}

func NewReportHandler(reviews reviewService, pending pendingSource, videos presigner, expiry time.Duration) *ReportHandler {
	return &ReportHandler{reviews: reviews, pending: pending, videos: videos, expiry: expiry}
}

func (h *ReportHandler) List(c *gin.Context) {
	var q dto.ReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	reports, err := h.reviews.List(c.Request.Context(), models.ReportStatus(q.Status), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]dto.ReportResponse, 0, len(reports))
	for _, r := range reports {
		resp = append(resp, reportToResponse(r, ""))
	}
	c.JSON(http.StatusOK, dto.ReportListResponse{Reports: resp, Total: len(resp)})
}

// Pending serves the live view kept by the report subscription.
func (h *ReportHandler) Pending(c *gin.Context) {
	reports := h.pending.Pending()
	resp := make([]dto.ReportResponse, 0, len(reports))
	for _, r := range reports {
		resp = append(resp, reportToResponse(r, ""))
	}
	c.JSON(http.StatusOK, dto.ReportListResponse{Reports: resp, Total: len(resp)})
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := parseReportID(c)
	if !ok {
		return
	}

	r, err := h.reviews.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportToResponse(r, h.videoURL(c.Request.Context(), r.VideoRef)))
}

// Create accepts either a multipart upload (video + fields) or a JSON report
// document whose video is already stored.
func (h *ReportHandler) Create(c *gin.Context) {
	var (
		r   models.SOSReport
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		r, err = h.submitMultipart(c)
	} else {
		var doc map[string]any
		if err := c.ShouldBindJSON(&doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report document"})
			return
		}
		if _, ok := doc["id"]; !ok {
			doc["id"] = uuid.NewString()
		}
		r, err = sos.Parse(doc, time.Now())
		if err == nil {
			r, err = h.reviews.Create(c.Request.Context(), r)
		}
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reportToResponse(r, ""))
}

func (h *ReportHandler) submitMultipart(c *gin.Context) (models.SOSReport, error) {
	file, err := c.FormFile("video")
	if err != nil {
		return models.SOSReport{}, badForm("video file is required")
	}
	if file.Size > maxVideoSize {
		return models.SOSReport{}, badForm("video exceeds 100MB")
	}

	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		return models.SOSReport{}, badForm("latitude must be a number")
	}
	lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		return models.SOSReport{}, badForm("longitude must be a number")
	}
	loc := models.Location{Latitude: lat, Longitude: lon}
	if raw := c.PostForm("accuracy"); raw != "" {
		if acc, err := strconv.ParseFloat(raw, 64); err == nil {
			loc.Accuracy = &acc
		}
	}

	f, err := file.Open()
	if err != nil {
		return models.SOSReport{}, err
	}
	defer f.Close()

	return h.reviews.Submit(c.Request.Context(), sos.NewReport{
		ReporterRef: c.PostForm("userId"),
		Message:     c.PostForm("message"),
		Location:    loc,
		Video:       f,
		VideoSize:   file.Size,
		ContentType: file.Header.Get("Content-Type"),
	})
}

func badForm(msg string) error {
	return fmt.Errorf("%w: %s", sos.ErrInvalidReport, msg)
}

func (h *ReportHandler) Approve(c *gin.Context) {
	h.review(c, h.reviews.Approve)
}

func (h *ReportHandler) Reject(c *gin.Context) {
	h.review(c, h.reviews.Reject)
}

func (h *ReportHandler) review(c *gin.Context, decide func(context.Context, uuid.UUID, string) (sos.Outcome, error)) {
	id, ok := parseReportID(c)
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	out, err := decide(c.Request.Context(), id, req.Notes)

	var partial *sos.PartialFailureError
	if errors.As(err, &partial) {
		c.JSON(http.StatusOK, dto.ReviewResult{
			Report:   reportToResponse(out.Report, ""),
			Notified: out.Notified,
			Partial:  true,
			Error:    partial.Err.Error(),
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReviewResult{
		Report:       reportToResponse(out.Report, ""),
		AlreadyFinal: out.AlreadyFinal,
		Notified:     out.Notified,
	})
}

func (h *ReportHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sos.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
	case errors.Is(err, sos.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sos.ErrInvalidReport):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("report request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *ReportHandler) videoURL(ctx context.Context, key string) string {
	if h.videos == nil || key == "" {
		return ""
	}
	url, err := h.videos.PresignedURL(ctx, key, h.expiry)
	if err != nil {
		slog.Warn("presign sos video", "key", key, "error", err)
		return ""
	}
	return url
}

func parseReportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return uuid.Nil, false
	}
	return id, true
}

func reportToResponse(r models.SOSReport, videoURL string) dto.ReportResponse {
	resp := dto.ReportResponse{
		ID:       r.ID,
		UserID:   r.ReporterRef,
		Message:  r.Message,
		VideoKey: r.VideoRef,
		VideoURL: videoURL,
		Location: dto.LocationResponse{
			Latitude:  r.Location.Latitude,
			Longitude: r.Location.Longitude,
			Accuracy:  r.Location.Accuracy,
		},
		Status:        string(r.Status),
		NotifiedCount: r.NotifiedCount,
		CreatedAt:     r.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if r.Review != nil {
		resp.Review = &dto.ReviewResponse{
			Decision:   string(r.Review.Decision),
			Notes:      r.Review.Notes,
			ReviewedAt: r.Review.ReviewedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}
