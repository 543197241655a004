package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodayUsesLocalOffset(t *testing.T) {
	loc := NewLocation("SGT", 8)
	// 23:30 UTC on Jan 1 is already Jan 2 in SGT.
	frozen := Frozen{Instant: time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)}

	today := Today(frozen, loc)
	assert.Equal(t, 2025, today.Year())
	assert.Equal(t, time.January, today.Month())
	assert.Equal(t, 2, today.Day())
	assert.Equal(t, 0, today.Hour())
}

func TestSlotUTCConvertsAtWriteTime(t *testing.T) {
	loc := NewLocation("SGT", 8)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)

	got := SlotUTC(date, "09:00", loc)
	require.Equal(t, time.UTC, got.Location())
	// 09:00 SGT == 01:00 UTC.
	assert.Equal(t, time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC), got)
}

func TestSlotUTCMalformedTimeFallsBackToMidnight(t *testing.T) {
	loc := NewLocation("SGT", 8)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)

	got := SlotUTC(date, "not-a-time", loc)
	assert.Equal(t, time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC), got)
}
