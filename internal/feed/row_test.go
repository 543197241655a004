package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sgt = time.FixedZone("SGT", 8*60*60)

func TestParseReportedDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2/3/25", time.Date(2025, 3, 2, 0, 0, 0, 0, sgt)},
		{"02/03/2025", time.Date(2025, 3, 2, 0, 0, 0, 0, sgt)},
		{"2-3-25", time.Date(2025, 3, 2, 0, 0, 0, 0, sgt)},
		{"15-11-2024", time.Date(2024, 11, 15, 0, 0, 0, 0, sgt)},
		{"2/3/2025 14:05", time.Date(2025, 3, 2, 0, 0, 0, 0, sgt)},
		{" 2/3/25 ", time.Date(2025, 3, 2, 0, 0, 0, 0, sgt)},
	}

	for _, tc := range tests {
		got, err := ParseReportedDate(tc.in, sgt)
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(tc.want), "input %q: got %v want %v", tc.in, got, tc.want)
	}
}

func TestParseReportedDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "tomorrow", "2025-03-02", "31/4/25", "2/13/25", "2/3", "a/b/c"} {
		_, err := ParseReportedDate(in, sgt)
		assert.True(t, errors.Is(err, ErrDateParse), "input %q: got %v", in, err)
	}
}

func TestHasAttendance(t *testing.T) {
	assert.True(t, HasAttendance("09:30"))
	assert.True(t, HasAttendance("attended"))
	assert.False(t, HasAttendance(""))
	assert.False(t, HasAttendance("  "))
	assert.False(t, HasAttendance("n/a"))
	assert.False(t, HasAttendance("N/A"))
	assert.False(t, HasAttendance(" N/a "))
}
