package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/crowdwatch/internal/models"
)

func TestActivityLog_ChangeTriggered(t *testing.T) {
	l := NewActivityLog()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Record(models.DetectionSample{Count: 2, CapturedAt: base}))
	assert.False(t, l.Record(models.DetectionSample{Count: 2, CapturedAt: base.Add(time.Second)}))
	assert.True(t, l.Record(models.DetectionSample{Count: 3, CapturedAt: base.Add(2 * time.Second)}))
	assert.True(t, l.Record(models.DetectionSample{Count: 2, CapturedAt: base.Add(3 * time.Second)}))

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []int{2, 3, 2}, []int{entries[0].Count, entries[1].Count, entries[2].Count})
	assert.Equal(t, base.Add(3*time.Second), entries[0].Timestamp)
}

func TestActivityLog_DropsOldestBeyondCapacity(t *testing.T) {
	l := NewActivityLog()
	for i := 0; i < 15; i++ {
		l.Record(models.DetectionSample{Count: i})
	}

	entries := l.Entries()
	require.Len(t, entries, 10)
	assert.Equal(t, 14, entries[0].Count)
	assert.Equal(t, 5, entries[9].Count)
}
