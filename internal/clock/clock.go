package clock

import "time"

// Clock supplies the current time. Threshold comparisons and "today"
// computations always go through an injected Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the wall clock.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Frozen is a Clock pinned to a fixed instant, for tests.
type Frozen struct {
	Instant time.Time
}

// Now returns the pinned instant.
func (f Frozen) Now() time.Time { return f.Instant }

// NewLocation builds the fixed-offset location the call center operates in.
// Slot wall-clock times are defined in this zone and converted to UTC at
// write time.
func NewLocation(name string, offsetHours int) *time.Location {
	if name == "" {
		name = "SGT"
	}
	return time.FixedZone(name, offsetHours*3600)
}

// Today returns midnight of the current day in loc.
func Today(c Clock, loc *time.Location) time.Time {
	now := c.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// SlotUTC converts a slot's local wall-clock time on date to an absolute UTC
// instant. hhmm is a "15:04" string; a malformed value falls back to midnight.
func SlotUTC(date time.Time, hhmm string, loc *time.Location) time.Time {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		parsed = time.Time{}
	}
	local := time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
	return local.UTC()
}
