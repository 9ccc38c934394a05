package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func gameLocation(t testing.TB) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(gameTZ)
	require.NoError(t, err)
	return loc
}

func TestMidnightBefore_KnownTimes(t *testing.T) {
	loc := gameLocation(t)

	// 01:30 UTC is still the previous evening in New York.
	utcEvening := time.Date(2026, 7, 15, 1, 30, 0, 0, time.UTC)
	got := midnightBefore(utcEvening, loc)
	assert.Equal(t, time.Date(2026, 7, 14, 0, 0, 0, 0, loc), got)

	noon := time.Date(2026, 7, 15, 12, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, loc), midnightBefore(noon, loc))
}

func TestMidnightAfter_DSTTransitions(t *testing.T) {
	loc := gameLocation(t)

	// Spring forward (2026-03-08): the day is 23 hours long.
	springDay := time.Date(2026, 3, 8, 12, 0, 0, 0, loc)
	start := midnightBefore(springDay, loc)
	end := midnightAfter(springDay, loc)
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	// Fall back (2026-11-01): the day is 25 hours long.
	fallDay := time.Date(2026, 11, 1, 12, 0, 0, 0, loc)
	start = midnightBefore(fallDay, loc)
	end = midnightAfter(fallDay, loc)
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}

func TestMidnightMathProperty(t *testing.T) {
	loc := gameLocation(t)

	rapid.Check(t, func(t *rapid.T) {
		unix := rapid.Int64Range(
			time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
			time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC).Unix(),
		).Draw(t, "unix")
		at := time.Unix(unix, 0)

		before := midnightBefore(at, loc)
		after := midnightAfter(at, loc)

		// The instant falls inside its own day window.
		assert.False(t, at.Before(before), "midnightBefore must not be after t")
		assert.True(t, at.Before(after), "t must be before midnightAfter")

		// Both bounds sit at a local midnight.
		assert.Equal(t, 0, before.In(loc).Hour())
		assert.Equal(t, 0, before.In(loc).Minute())
		assert.Equal(t, 0, after.In(loc).Hour())
		assert.Equal(t, 0, after.In(loc).Minute())

		// A day is 24 hours except at DST transitions.
		length := after.Sub(before)
		assert.GreaterOrEqual(t, length, 23*time.Hour)
		assert.LessOrEqual(t, length, 25*time.Hour)

		// Flooring is idempotent, and the window edges agree.
		assert.True(t, midnightBefore(before, loc).Equal(before))
		assert.True(t, midnightAfter(before, loc).Equal(after))
	})
}
