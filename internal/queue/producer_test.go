package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/crowdwatch/internal/models"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "alerts.gate-3", AlertSubject("gate-3"))
	assert.Equal(t, "notify.sos.abc", NotificationSubject("abc"))
}

func TestNotificationMsgID_StablePerRecipient(t *testing.T) {
	report := uuid.MustParse("0f0e0d0c-0b0a-4908-8706-050403020100")
	a := models.Notification{ID: uuid.New(), ReportID: report, Recipient: models.Recipient{ID: "guard-1"}}
	b := models.Notification{ID: uuid.New(), ReportID: report, Recipient: models.Recipient{ID: "guard-1"}}
	c := models.Notification{ID: uuid.New(), ReportID: report, Recipient: models.Recipient{ID: "guard-2"}}

	assert.Equal(t, "0f0e0d0c-0b0a-4908-8706-050403020100:guard-1", NotificationMsgID(a))
	assert.Equal(t, NotificationMsgID(a), NotificationMsgID(b))
	assert.NotEqual(t, NotificationMsgID(a), NotificationMsgID(c))
}

func TestStreamConfigs(t *testing.T) {
	cfgs := streamConfigs()
	assert.Len(t, cfgs, 2)
	for _, c := range cfgs {
		if c.Name == NotifyStreamName {
			assert.NotZero(t, c.Duplicates, "dedupe window backs the per-recipient msg id")
			assert.Equal(t, []string{"notify.sos.>"}, c.Subjects)
		}
	}
}
