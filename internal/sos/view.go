package sos

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
)

type Change string

const (
	ChangeNone    Change = ""
	ChangeAdded   Change = "added"
	ChangeUpdated Change = "updated"
	ChangeRemoved Change = "removed"
)

// PendingView is the set of reports awaiting review.
type PendingView struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]models.SOSReport
}

func NewPendingView() *PendingView {
	return &PendingView{reports: make(map[uuid.UUID]models.SOSReport)}
}

// Replace swaps in a full snapshot.
func (v *PendingView) Replace(reports []models.SOSReport) {
	next := make(map[uuid.UUID]models.SOSReport, len(reports))
	for _, r := range reports {
		if r.Status == models.ReportPending {
			next[r.ID] = r
		}
	}
	v.mu.Lock()
	v.reports = next
	v.mu.Unlock()
}

// Apply folds one changed report into the view.
func (v *PendingView) Apply(r models.SOSReport) Change {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, had := v.reports[r.ID]
	if r.Status != models.ReportPending {
		if !had {
			return ChangeNone
		}
		delete(v.reports, r.ID)
		return ChangeRemoved
	}
	v.reports[r.ID] = r
	if had {
		return ChangeUpdated
	}
	return ChangeAdded
}

func (v *PendingView) Remove(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, had := v.reports[id]
	delete(v.reports, id)
	return had
}

// Pending lists reports newest first.
func (v *PendingView) Pending() []models.SOSReport {
	v.mu.RLock()
	out := make([]models.SOSReport, 0, len(v.reports))
	for _, r := range v.reports {
		out = append(out, r)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func (v *PendingView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.reports)
}
