package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Every(6 * time.Hour)
	assert.Equal(t, now.Add(6*time.Hour), s.Next(now))
	assert.Equal(t, "every 6h0m0s", s.String())
}

func TestCronSchedule_Parsing(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"*/5 * * * *", false},
		{"0 0 1 1 *", false},
		{"* * * *", true},        // too short
		{"* * * * * *", true},    // too long
		{"60 * * * *", true},     // invalid minute
		{"* 24 * * *", true},     // invalid hour
		{"a * * * *", true},      // invalid char
		{"*/0 * * * *", true},    // zero step
		{"5-1 * * * *", true},    // inverted range
		{"1-5 * * * *", false},   // range
		{"1,2,3 * * * *", false}, // list
	}

	for _, tt := range tests {
		_, err := Cron(tt.expr)
		assert.Equal(t, tt.wantErr, err != nil, "Cron(%q) error = %v", tt.expr, err)
	}
}

func TestCronSchedule_Next(t *testing.T) {
	// 2025-01-01 10:00:00 (Wed)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", now.Add(1 * time.Minute)},
		{"30 * * * *", time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"0 */6 * * *", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"0 8 * * *", time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)},
		{"0 0 1 2 *", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 5", time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		s, err := Cron(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, s.Next(now), tt.expr)
	}
}

func TestCronSchedule_NoMatch(t *testing.T) {
	s, err := Cron("0 0 31 2 *") // February 31st
	require.NoError(t, err)
	assert.True(t, s.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestParse(t *testing.T) {
	s, err := Parse("6h")
	require.NoError(t, err)
	assert.IsType(t, &IntervalSchedule{}, s)

	s, err = Parse(" 15 */4 * * * ")
	require.NoError(t, err)
	require.IsType(t, &CronSchedule{}, s)
	assert.Equal(t, "cron 15 */4 * * *", s.(*CronSchedule).String())

	for _, bad := range []string{"", "soon", "30s", "* * *"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
