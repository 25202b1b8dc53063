package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/crowdwatch/internal/models"
)

type stubDirectory struct {
	recipients []models.Recipient
	err        error
	gotRadius  float64
}

func (s *stubDirectory) Nearby(_ context.Context, _ models.Location, radius float64) ([]models.Recipient, error) {
	s.gotRadius = radius
	return s.recipients, s.err
}

type recordingPublisher struct {
	sent   []models.Notification
	failOn string
}

func (p *recordingPublisher) PublishNotification(_ context.Context, n models.Notification) error {
	if n.Recipient.ID == p.failOn {
		return errors.New("nats: timeout")
	}
	p.sent = append(p.sent, n)
	return nil
}

func testReport() models.SOSReport {
	return models.SOSReport{
		ID:       uuid.New(),
		Message:  "crowd crush at north gate",
		Location: origin,
		Status:   models.ReportApproved,
	}
}

func TestNotifier_QueuesOnePerRecipient(t *testing.T) {
	dir := &stubDirectory{recipients: []models.Recipient{{ID: "a", Address: "whatsapp:+1"}, {ID: "b", Address: "whatsapp:+2"}}}
	pub := &recordingPublisher{}
	report := testReport()

	n, err := NewNotifier(dir, pub, 750).NotifyNearby(context.Background(), report)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 750.0, dir.gotRadius)
	require.Len(t, pub.sent, 2)
	for _, msg := range pub.sent {
		assert.Equal(t, report.ID, msg.ReportID)
		assert.Contains(t, msg.Body, "crowd crush at north gate")
		assert.Contains(t, msg.Body, "28.63150, 77.21670")
	}
}

func TestNotifier_PartialPublishFailure(t *testing.T) {
	dir := &stubDirectory{recipients: []models.Recipient{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	pub := &recordingPublisher{failOn: "b"}

	n, err := NewNotifier(dir, pub, 1000).NotifyNearby(context.Background(), testReport())
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient b")
}

func TestNotifier_DirectoryFailure(t *testing.T) {
	dir := &stubDirectory{err: errors.New("redis down")}

	n, err := NewNotifier(dir, &recordingPublisher{}, 1000).NotifyNearby(context.Background(), testReport())
	assert.Zero(t, n)
	assert.ErrorContains(t, err, "redis down")
}

func TestNotifier_NoRecipients(t *testing.T) {
	n, err := NewNotifier(&stubDirectory{}, &recordingPublisher{}, 1000).NotifyNearby(context.Background(), testReport())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
