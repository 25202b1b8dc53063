package sos

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/storage"
)

// memStore mirrors the conditional update semantics of the Postgres store.
type memStore struct {
	mu        sync.Mutex
	reports   map[uuid.UUID]models.SOSReport
	insertErr error
}

func newMemStore(reports ...models.SOSReport) *memStore {
	s := &memStore{reports: make(map[uuid.UUID]models.SOSReport)}
	for _, r := range reports {
		s.reports[r.ID] = r
	}
	return s
}

func (s *memStore) InsertReport(_ context.Context, r *models.SOSReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.reports[r.ID] = *r
	return nil
}

func (s *memStore) GetReport(_ context.Context, id uuid.UUID) (*models.SOSReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) ListReports(_ context.Context, status models.ReportStatus, limit int) ([]models.SOSReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SOSReport
	for _, r := range s.reports {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ReviewReport(_ context.Context, id uuid.UUID, decision models.ReportStatus, notes string, at time.Time) (*models.SOSReport, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if r.Status != models.ReportPending {
		return &r, false, nil
	}
	r.Status = decision
	r.Review = &models.Review{Decision: decision, Notes: notes, ReviewedAt: at}
	s.reports[id] = r
	return &r, true, nil
}

func (s *memStore) SetNotifiedCount(_ context.Context, id uuid.UUID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reports[id]
	r.NotifiedCount = n
	s.reports[id] = r
	return nil
}

func (s *memStore) put(r models.SOSReport) {
	s.mu.Lock()
	s.reports[r.ID] = r
	s.mu.Unlock()
}

type memVideos struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	err     error
}

func newMemVideos() *memVideos { return &memVideos{objects: make(map[string][]byte)} }

func (v *memVideos) PutStream(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if v.err != nil {
		return v.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	v.mu.Lock()
	v.objects[key] = buf.Bytes()
	v.mu.Unlock()
	return nil
}

func (v *memVideos) DeleteObject(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.objects, key)
	v.deleted = append(v.deleted, key)
	return nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
	n     int
	err   error
}

func (c *countingNotifier) NotifyNearby(_ context.Context, r models.SOSReport) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, r.ID)
	return c.n, c.err
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var errBroker = errors.New("nats: no responders")

func pendingReport(offset time.Duration) models.SOSReport {
	return models.SOSReport{
		ID:          uuid.New(),
		ReporterRef: "user-42",
		Message:     "people falling near stage",
		Location:    models.Location{Latitude: 28.6315, Longitude: 77.2167},
		SubmittedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset),
		Status:      models.ReportPending,
	}
}
