package cloud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertLimiterBurstThenBlock(t *testing.T) {
	l := NewAlertLimiter(5*time.Second, 3)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(now), "burst alert %d", i)
	}
	assert.False(t, l.Allow(now), "fourth alert should be limited")

	assert.False(t, l.Allow(now.Add(4*time.Second)))
	assert.True(t, l.Allow(now.Add(5*time.Second)), "one token refills after the interval")
}

func TestAlertLimiterDisabled(t *testing.T) {
	l := NewAlertLimiter(0, 0)
	assert.Nil(t, l)

	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(now))
	}
}

func TestFakeChannelHonoursLimiter(t *testing.T) {
	f := NewFakeChannel()
	f.Limiter = NewAlertLimiter(time.Hour, 1)

	assert.NoError(t, f.RaiseAlert("first"))
	assert.ErrorIs(t, f.RaiseAlert("second"), ErrAlertRateLimited)
	assert.Equal(t, 1, f.AlertCount())
}
