package kql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimespan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		d        time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"whole days", 7 * 24 * time.Hour, "7d"},
		{"whole hours", 12 * time.Hour, "12h"},
		{"whole minutes", 90 * time.Minute, "90m"},
		{"whole seconds", 45 * time.Second, "45s"},
		{"milliseconds", 45 * time.Millisecond, "45ms"},
		{"microseconds", 7 * time.Microsecond, "7microsecond"},
		{"ticks", 300 * time.Nanosecond, "3tick"},
		{"negative", -12 * time.Hour, "-12h"},
		{
			"mixed falls back to clock form",
			24*time.Hour + 2*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond,
			"1.02:03:04.5000000",
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			assert.Equal(t, test.expected, FormatTimespan(test.d))
		})
	}
}

func TestParseTimespan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		literal  string
		expected time.Duration
	}{
		{"unit days", "7d", 7 * 24 * time.Hour},
		{"unit hours", "12h", 12 * time.Hour},
		{"unit minutes", "30m", 30 * time.Minute},
		{"unit seconds", "45s", 45 * time.Second},
		{"unit milliseconds", "45ms", 45 * time.Millisecond},
		{"long unit", "5seconds", 5 * time.Second},
		{"fractional", "1.5h", 90 * time.Minute},
		{"time wrapper", "time(2d)", 48 * time.Hour},
		{"timespan wrapper", "timespan(12h)", 12 * time.Hour},
		{"clock form", "12:00:00", 12 * time.Hour},
		{"clock with days", "1.02:03:04", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"clock with fraction", "00:00:00.045", 45 * time.Millisecond},
		{"clock with ticks", "00:00:01.0000001", time.Second + 100*time.Nanosecond},
		{"negative clock", "-12:00:00", -12 * time.Hour},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			got, err := ParseTimespan(test.literal)
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestParseTimespanErrors(t *testing.T) {
	t.Parallel()

	for _, literal := range []string{"", "abc", "12q", "1:2", "00:99:00"} {
		_, err := ParseTimespan(literal)
		assert.Error(t, err, "literal %q", literal)
	}
}

func TestTimespanRoundTrip(t *testing.T) {
	t.Parallel()

	durations := []time.Duration{
		0,
		45 * time.Millisecond,
		12 * time.Hour,
		3 * 24 * time.Hour,
		26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond,
	}
	for _, d := range durations {
		got, err := ParseTimespan(FormatTimespan(d))
		require.NoError(t, err)
		assert.Equal(t, d, got, "duration %v", d)
	}
}

func TestDatetimeRoundTrip(t *testing.T) {
	t.Parallel()

	times := []time.Time{
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 15, 13, 45, 30, 123456700, time.UTC),
	}
	for _, tm := range times {
		got, err := ParseDatetime(FormatDatetime(tm))
		require.NoError(t, err)
		assert.True(t, tm.Equal(got), "time %v, got %v", tm, got)
	}
}

func TestParseDatetime(t *testing.T) {
	t.Parallel()

	got, err := ParseDatetime("datetime(2021-01-01)")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDatetime("datetime(not a date)")
	assert.Error(t, err)
}
