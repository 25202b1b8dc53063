package density

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_DefaultThresholds(t *testing.T) {
	th, err := NewThresholds(1, 3)
	require.NoError(t, err)

	tests := []struct {
		count int
		want  Tier
	}{
		{0, Quiet},
		{1, Warning},
		{2, Warning},
		{3, Critical},
		{40, Critical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.count, th), "count=%d", tt.count)
	}
}

func TestClassify_Monotone(t *testing.T) {
	th := Thresholds{Warning: 4, Critical: 9}
	prev := Classify(0, th)
	for n := 1; n < 50; n++ {
		cur := Classify(n, th)
		assert.GreaterOrEqual(t, cur.Severity(), prev.Severity(), "count=%d", n)
		prev = cur
	}
}

func TestClassify_EqualThresholdsSkipWarning(t *testing.T) {
	th, err := NewThresholds(5, 5)
	require.NoError(t, err)

	assert.Equal(t, Quiet, Classify(4, th))
	assert.Equal(t, Critical, Classify(5, th))
	for n := 0; n < 20; n++ {
		assert.NotEqual(t, Warning, Classify(n, th))
	}
}

func TestNewThresholds_Rejects(t *testing.T) {
	_, err := NewThresholds(4, 2)
	assert.Error(t, err)

	_, err = NewThresholds(-1, 2)
	assert.Error(t, err)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "quiet", Quiet.String())
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "critical", Critical.String())
}
