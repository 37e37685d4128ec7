package services

import (
	"fmt"
	"time"
)

// Clock is the time source for lead-time checks and the auto-completion sweep.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04"
	minutesPerDay = 24 * 60
)

// minutesSinceMidnight converts t to minutes on its own calendar day.
func minutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock parses HH:MM into minutes since midnight.
func parseClock(hhmm string) (int, error) {
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return 0, err
	}
	return minutesSinceMidnight(t), nil
}

// formatClock renders minutes as HH:MM. Values past midnight keep counting
// hours (e.g. 1470 -> "24:30") since windows stay on the booking date.
func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
