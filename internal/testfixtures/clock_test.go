package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/calendar"
)

func TestClockStartsAtReferenceTime(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	assert.True(t, clock.Now().Equal(ReferenceTime()))
	assert.Equal(t, ReferenceDate(), clock.Today())
}

func TestClockCrossesMidnight(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Date(2024, time.June, 10, 23, 30, 0, 0, time.UTC))
	now := clock.NowFunc()

	clock.Advance(45 * time.Minute)
	assert.Equal(t, calendar.MustDate("2024-06-11"), clock.Today())
	assert.Equal(t, 15, now().Minute())

	clock.Set(time.Date(2024, time.December, 31, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, calendar.MustDate("2024-12-31"), clock.Today())
	assert.True(t, clock.Now().Equal(now()))
}

func TestClockSetWall(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	require.NoError(t, clock.SetWall(calendar.MustDate("2024-06-12"), "14:05"))
	assert.Equal(t, time.Date(2024, time.June, 12, 14, 5, 0, 0, time.UTC), clock.Now())

	assert.Error(t, clock.SetWall(calendar.MustDate("2024-06-12"), "25:00"))
	assert.Equal(t, calendar.MustDate("2024-06-12"), clock.Today())
}
