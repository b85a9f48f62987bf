// Package calendar lays a month out as a fixed six-week grid with each
// in-month day carrying its appointments.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// CellCount is six rows of seven days, whatever the month.
const CellCount = 42

type Cell struct {
	Date         clock.Date
	InMonth      bool
	Today        bool
	Appointments []model.Appointment
}

// Day is the day-of-month number shown in the cell.
func (c Cell) Day() int { return c.Date.Day }

type Grid struct {
	Year  int
	Month time.Month
	Cells [CellCount]Cell
}

// Build lays out month starting on Sunday. Leading and trailing cells belong
// to the adjacent months and never carry appointments.
func Build(year int, month time.Month, appts []model.Appointment, today clock.Date) (Grid, error) {
	if month < time.January || month > time.December {
		return Grid{}, model.Validationf("month %d out of range", month)
	}
	if year < 1 || year > 9999 {
		return Grid{}, model.Validationf("year %d out of range", year)
	}

	first := clock.NewDate(year, month, 1)
	lead := int(first.Weekday())
	start := first.AddDays(-lead)

	byDate := make(map[clock.Date][]model.Appointment)
	for _, a := range appts {
		if a.Date.Year == year && a.Date.Month == month {
			byDate[a.Date] = append(byDate[a.Date], a)
		}
	}

	g := Grid{Year: year, Month: month}
	for i := range g.Cells {
		d := start.AddDays(i)
		cell := Cell{Date: d, InMonth: d.Year == year && d.Month == month}
		if cell.InMonth {
			cell.Today = d.Equal(today)
			cell.Appointments = byDate[d]
			sort.SliceStable(cell.Appointments, func(i, j int) bool {
				return cell.Appointments[i].Time < cell.Appointments[j].Time
			})
		}
		g.Cells[i] = cell
	}
	return g, nil
}

// Weeks returns the grid as six rows.
func (g Grid) Weeks() [6][7]Cell {
	var out [6][7]Cell
	for i, c := range g.Cells {
		out[i/7][i%7] = c
	}
	return out
}

// Cell returns the in-month cell for day, if any.
func (g Grid) Cell(day int) (Cell, bool) {
	for _, c := range g.Cells {
		if c.InMonth && c.Date.Day == day {
			return c, true
		}
	}
	return Cell{}, false
}

// Selectable reports whether d may be picked from this grid: it must be an
// in-month date that is not before today.
func (g Grid) Selectable(d, today clock.Date) bool {
	return d.Year == g.Year && d.Month == g.Month && !d.Before(today)
}

// Count is the badge number for a cell.
func (c Cell) Count() int { return len(c.Appointments) }

// Shift moves (year, month) by delta months, wrapping across years.
func Shift(year int, month time.Month, delta int) (int, time.Month) {
	idx := year*12 + int(month-1) + delta
	return idx / 12, time.Month(idx%12 + 1)
}

func (g Grid) Title() string { return fmt.Sprintf("%s %d", g.Month, g.Year) }
