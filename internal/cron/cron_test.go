package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	for _, expr := range []string{
		"* * * * *",
		"0 9 * * 1-5",
		"*/15 * * * *",
		"0 0 1,15 * *",
		"30 8-17 * * *",
	} {
		assert.NoError(t, Parse(expr), expr)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",      // four fields
		"* * * * * *",  // six fields
		"61 * * * *",   // minute out of range
		"* 25 * * *",   // hour out of range
		"banana",
	} {
		assert.Error(t, Parse(expr), expr)
	}
}

func TestNext_WeekdayNineInNewYork(t *testing.T) {
	// Monday 2025-01-06 08:59:59 America/New_York == 13:59:59 UTC.
	base := time.Date(2025, 1, 6, 13, 59, 59, 0, time.UTC)

	next, err := Next("0 9 * * 1-5", "America/New_York", base)
	require.NoError(t, err)

	want := time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)
	assert.True(t, next.Equal(want), "next = %v, want %v", next, want)
}

func TestNext_SkipsWeekend(t *testing.T) {
	// Friday 2025-01-10 10:00 local is past 09:00; next weekday 09:00 is
	// Monday the 13th.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	base := time.Date(2025, 1, 10, 10, 0, 0, 0, loc)

	next, err := Next("0 9 * * 1-5", "America/New_York", base)
	require.NoError(t, err)

	want := time.Date(2025, 1, 13, 9, 0, 0, 0, loc)
	assert.True(t, next.Equal(want), "next = %v, want %v", next, want)
}

func TestNext_StrictlyMonotonic(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	n1, err := Next("*/5 * * * *", "UTC", base)
	require.NoError(t, err)
	n2, err := Next("*/5 * * * *", "UTC", n1)
	require.NoError(t, err)

	assert.True(t, n1.After(base))
	assert.True(t, n2.After(n1), "Next(Next(t)) must be strictly later")
}

func TestNext_DomDowOrSemantics(t *testing.T) {
	// "0 0 13 * 5": midnight on the 13th OR any Friday. From Wed 2025-06-04,
	// the first match is Friday 2025-06-06, not the 13th.
	base := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

	next, err := Next("0 0 13 * 5", "UTC", base)
	require.NoError(t, err)

	want := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	assert.True(t, next.Equal(want), "next = %v, want %v", next, want)
}

func TestNext_BadZone(t *testing.T) {
	_, err := Next("* * * * *", "Mars/Olympus", time.Now())
	assert.Error(t, err)
}
