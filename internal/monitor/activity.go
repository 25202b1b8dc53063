package monitor

import (
	"sync"

	"github.com/your-org/crowdwatch/internal/models"
)

const activityCapacity = 10

// ActivityLog keeps the most recent distinct person counts, newest first.
type ActivityLog struct {
	mu      sync.RWMutex
	records []models.ActivityRecord
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{records: make([]models.ActivityRecord, 0, activityCapacity)}
}

// Record appends the sample only if its count differs from the newest entry.
func (l *ActivityLog) Record(s models.DetectionSample) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) > 0 && l.records[0].Count == s.Count {
		return false
	}

	rec := models.ActivityRecord{Timestamp: s.CapturedAt, Count: s.Count}
	if len(l.records) < activityCapacity {
		l.records = append(l.records, models.ActivityRecord{})
	}
	copy(l.records[1:], l.records[:len(l.records)-1])
	l.records[0] = rec
	return true
}

// Entries returns a copy, newest first.
func (l *ActivityLog) Entries() []models.ActivityRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ActivityRecord, len(l.records))
	copy(out, l.records)
	return out
}
