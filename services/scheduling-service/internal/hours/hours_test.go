package hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

func TestDefaultWeek(t *testing.T) {
	w := DefaultWeek()
	require.NoError(t, w.Validate())

	open, closeAt, ok := w.Window(time.Monday)
	require.True(t, ok)
	assert.Equal(t, "9:00 AM", open.Display())
	assert.Equal(t, "5:00 PM", closeAt.Display())

	_, _, ok = w.Window(time.Sunday)
	assert.False(t, ok)
}

func TestSetHoursRejectsInvertedWindow(t *testing.T) {
	w := DefaultWeek()
	err := w.SetHours(time.Tuesday, clock.MustTimeOfDay(17, 0), clock.MustTimeOfDay(9, 0))
	assert.ErrorIs(t, err, ErrInvalidHours)
	assert.Equal(t, DefaultOpen, w[time.Tuesday].Open)

	require.NoError(t, w.SetHours(time.Saturday, clock.MustTimeOfDay(10, 0), clock.MustTimeOfDay(14, 0)))
	assert.False(t, w[time.Saturday].Closed)
}

func TestToggle(t *testing.T) {
	w := DefaultWeek()
	w.Toggle(time.Monday)
	assert.True(t, w[time.Monday].Closed)
	w.Toggle(time.Monday)
	assert.False(t, w[time.Monday].Closed)
	assert.Equal(t, DefaultOpen, w[time.Monday].Open)
}

func TestRowsRoundTrip(t *testing.T) {
	w := DefaultWeek()
	require.NoError(t, w.SetHours(time.Wednesday, clock.MustTimeOfDay(12, 0), clock.MustTimeOfDay(20, 30)))

	rows := w.Rows()
	require.Len(t, rows, 7)
	assert.Equal(t, "Monday", rows[0].Day)
	assert.Equal(t, "Sunday", rows[6].Day)
	assert.Equal(t, Row{Day: "Wednesday", Open: "12:00 PM", Close: "8:30 PM"}, rows[2])

	back, err := FromRows(rows)
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

func TestFromRowsAccepts24HourAndShortNames(t *testing.T) {
	w, err := FromRows([]Row{
		{Day: "fri", Open: "08:00", Close: "16:00"},
		{Day: "SUNDAY", IsClosed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, clock.MustTimeOfDay(8, 0), w[time.Friday].Open)
	assert.True(t, w[time.Sunday].Closed)
	assert.Equal(t, DefaultOpen, w[time.Monday].Open)

	_, err = FromRows([]Row{{Day: "Funday", Open: "9:00 AM", Close: "5:00 PM"}})
	assert.ErrorIs(t, err, ErrInvalidHours)
	_, err = FromRows([]Row{{Day: "Monday", Open: "5:00 PM", Close: "9:00 AM"}})
	assert.ErrorIs(t, err, ErrInvalidHours)
}
