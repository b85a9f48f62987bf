package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

func inMonth(g Grid) int {
	n := 0
	for _, c := range g.Cells {
		if c.InMonth {
			n++
		}
	}
	return n
}

func TestBuildAlways42Cells(t *testing.T) {
	for year := 2023; year <= 2025; year++ {
		for m := time.January; m <= time.December; m++ {
			g, err := Build(year, m, nil, clock.Date{})
			require.NoError(t, err)
			assert.Len(t, g.Cells, CellCount)
			assert.Equal(t, clock.DaysIn(year, m), inMonth(g), "%d-%02d", year, m)
			assert.Equal(t, time.Sunday, g.Cells[0].Date.Weekday())
			for i := 1; i < CellCount; i++ {
				assert.Equal(t, g.Cells[i-1].Date.AddDays(1), g.Cells[i].Date)
			}
		}
	}
}

func TestBuildFebruary(t *testing.T) {
	// Feb 2024 (leap) starts on a Thursday.
	g, err := Build(2024, time.February, nil, clock.Date{})
	require.NoError(t, err)
	assert.Equal(t, 29, inMonth(g))
	assert.Equal(t, clock.NewDate(2024, time.January, 28), g.Cells[0].Date)
	assert.False(t, g.Cells[3].InMonth)
	assert.True(t, g.Cells[4].InMonth)
	assert.Equal(t, 1, g.Cells[4].Day())
	assert.Equal(t, clock.NewDate(2024, time.March, 9), g.Cells[41].Date)

	// Feb 2026 (non-leap) starts on a Sunday: no leading cells, two trailing weeks.
	g, err = Build(2026, time.February, nil, clock.Date{})
	require.NoError(t, err)
	assert.Equal(t, 28, inMonth(g))
	assert.True(t, g.Cells[0].InMonth)
	assert.Equal(t, clock.NewDate(2026, time.March, 14), g.Cells[41].Date)
}

func TestBuildDecemberWrapsIntoJanuary(t *testing.T) {
	g, err := Build(2024, time.December, nil, clock.Date{})
	require.NoError(t, err)
	last := g.Cells[CellCount-1]
	assert.False(t, last.InMonth)
	assert.Equal(t, 2025, last.Date.Year)
	assert.Equal(t, time.January, last.Date.Month)

	y, m := Shift(2024, time.December, 1)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.January, m)
	y, m = Shift(2025, time.January, -1)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.December, m)
	y, m = Shift(2024, time.March, -15)
	assert.Equal(t, 2022, y)
	assert.Equal(t, time.December, m)
}

func TestBuildAttachesAppointmentsAndToday(t *testing.T) {
	appts := []model.Appointment{
		{ID: "late", Date: clock.NewDate(2024, time.May, 6), Time: clock.MustTimeOfDay(15, 0)},
		{ID: "early", Date: clock.NewDate(2024, time.May, 6), Time: clock.MustTimeOfDay(9, 0)},
		{ID: "other-month", Date: clock.NewDate(2024, time.June, 1), Time: clock.MustTimeOfDay(9, 0)},
		{ID: "prev-month", Date: clock.NewDate(2024, time.April, 30), Time: clock.MustTimeOfDay(9, 0)},
	}
	today := clock.NewDate(2024, time.May, 6)
	g, err := Build(2024, time.May, appts, today)
	require.NoError(t, err)

	cell, ok := g.Cell(6)
	require.True(t, ok)
	assert.True(t, cell.Today)
	require.Equal(t, 2, cell.Count())
	assert.Equal(t, "early", cell.Appointments[0].ID)

	total := 0
	for _, c := range g.Cells {
		if !c.InMonth {
			assert.Empty(t, c.Appointments)
			assert.False(t, c.Today)
		}
		total += c.Count()
	}
	assert.Equal(t, 2, total)

	assert.True(t, g.Selectable(today, today))
	assert.False(t, g.Selectable(today.AddDays(-1), today))
	assert.False(t, g.Selectable(clock.NewDate(2024, time.June, 1), today))
	assert.Equal(t, "May 2024", g.Title())
}

func TestBuildRejectsBadMonth(t *testing.T) {
	_, err := Build(2024, 13, nil, clock.Date{})
	assert.ErrorIs(t, err, model.ErrValidation)
}
