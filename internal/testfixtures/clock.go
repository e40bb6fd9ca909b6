package testfixtures

import (
	"sync"
	"time"

	"github.com/example/calendar-service/internal/calendar"
)

// Clock is a settable time source. Placement and notification results depend
// on "now", so tests pin it here.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection. A nil clock falls back to time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// SetWall moves the clock to hhmm on date in the clock's current location.
func (c *Clock) SetWall(date calendar.Date, hhmm string) error {
	clock, err := calendar.ParseClock(hhmm)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = clock.On(date, c.current.Location())
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Today returns the calendar day of the current instant.
func (c *Clock) Today() calendar.Date {
	return calendar.DateOf(c.Now())
}
