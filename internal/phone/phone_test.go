package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "bare local number expands to prefixed forms",
			raw:  "91234567",
			want: []string{"91234567", "6591234567", "+6591234567"},
		},
		{
			name: "prefixed number yields bare local form",
			raw:  "+6591234567",
			want: []string{"6591234567", "+6591234567", "91234567"},
		},
		{
			name: "punctuation is stripped",
			raw:  "+65 9123-4567",
			want: []string{"6591234567", "+6591234567", "91234567"},
		},
		{
			name: "unrelated length passes through as-is",
			raw:  "123456",
			want: []string{"123456"},
		},
		{
			name: "garbage yields empty set",
			raw:  "n/a",
			want: nil,
		},
		{
			name: "empty yields empty set",
			raw:  "",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.raw))
		})
	}
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("91234567", "+6591234567"))
	assert.True(t, Match("+6591234567", "91234567"), "matching must be symmetric")
	assert.True(t, Match("9123 4567", "6591234567"))

	assert.False(t, Match("91234567", "81234567"))
	assert.False(t, Match("+6591234567", "+6581234567"), "shared country code must not match")
	assert.False(t, Match("", "91234567"))
	assert.False(t, Match("n/a", "n/a"))
}
