package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplayWraparound(t *testing.T) {
	cases := map[string]TimeOfDay{
		"12:00 AM": 0,
		"12:30 am": 30,
		"9:00 AM":  9 * 60,
		"09:15AM":  9*60 + 15,
		"12:00 PM": 12 * 60,
		"1:00 PM":  13 * 60,
		"11:30 PM": 23*60 + 30,
	}
	for in, want := range cases {
		got, err := ParseDisplay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDisplayRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "9:00", "13:00 PM", "0:30 AM", "9 AM", "9:5 AM", "nine AM"} {
		_, err := ParseDisplay(in)
		assert.ErrorIs(t, err, ErrInvalidTime, in)
	}
}

func TestTo24AndBack(t *testing.T) {
	cases := map[string]string{
		"12:00 AM": "00:00",
		"12:00 PM": "12:00",
		"11:30 PM": "23:30",
		"9:00 AM":  "09:00",
	}
	for display, want := range cases {
		got, err := To24(display)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		back, err := From24(got)
		require.NoError(t, err)
		assert.Equal(t, display, back)
	}
}

func TestRoundTripEveryMinute(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		tod := TimeOfDay(m)
		fromDisplay, err := ParseDisplay(tod.Display())
		require.NoError(t, err)
		from24, err := Parse24(tod.Clock24())
		require.NoError(t, err)
		if fromDisplay != tod || from24 != tod {
			t.Fatalf("round trip mismatch for %d: display=%d clock24=%d", m, fromDisplay, from24)
		}
	}
}

func TestParseAcceptsBothForms(t *testing.T) {
	a, err := Parse("2:30 PM")
	require.NoError(t, err)
	b, err := Parse("14:30:00")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = Parse("24:00")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2023-12-31", NewDate(2024, time.January, 0).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2023, time.February))

	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
}

func TestZoneToday(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 02:30 UTC on the 10th is still the 9th in New York.
	z := NewZoneWithNow(loc, func() time.Time { return time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC) })
	assert.Equal(t, NewDate(2024, time.March, 9), z.Today())
	assert.Equal(t, MustTimeOfDay(21, 30), z.TimeOf(z.Now()))
	assert.True(t, z.IsToday(NewDate(2024, time.March, 9)))
}
