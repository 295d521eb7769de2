package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic hour windows.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source.
func Clock() clockwork.Clock {
	return clock
}

// ScanHour truncates t to its nominal scan hour in UTC.
func ScanHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// CurrentHour is the start of the hour in progress, which is never complete
// in the archive and is excluded from hour windows.
func CurrentHour() time.Time {
	return ScanHour(clock.Now())
}

// HourWindow returns the last hoursBack whole hours before the current hour,
// newest first.
func HourWindow(hoursBack int) []time.Time {
	if hoursBack <= 0 {
		return nil
	}
	now := CurrentHour()
	hours := make([]time.Time, 0, hoursBack)
	for h := 1; h <= hoursBack; h++ {
		hours = append(hours, now.Add(-time.Duration(h)*time.Hour))
	}
	return hours
}
