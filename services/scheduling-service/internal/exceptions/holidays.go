package exceptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

type Holiday struct {
	Date     clock.Date
	Name     string
	Observed bool
}

// USFederalHolidays returns the eleven federal holidays of year in date
// order. A holiday falling on a weekend also yields its observed weekday
// (Saturday to Friday, Sunday to Monday) when that day is still in year.
func USFederalHolidays(year int) []Holiday {
	base := []Holiday{
		{Date: clock.NewDate(year, time.January, 1), Name: "New Year's Day"},
		{Date: nthWeekday(year, time.January, time.Monday, 3), Name: "Martin Luther King Jr. Day"},
		{Date: nthWeekday(year, time.February, time.Monday, 3), Name: "Washington's Birthday"},
		{Date: lastWeekday(year, time.May, time.Monday), Name: "Memorial Day"},
		{Date: clock.NewDate(year, time.June, 19), Name: "Juneteenth National Independence Day"},
		{Date: clock.NewDate(year, time.July, 4), Name: "Independence Day"},
		{Date: nthWeekday(year, time.September, time.Monday, 1), Name: "Labor Day"},
		{Date: nthWeekday(year, time.October, time.Monday, 2), Name: "Columbus Day"},
		{Date: clock.NewDate(year, time.November, 11), Name: "Veterans Day"},
		{Date: nthWeekday(year, time.November, time.Thursday, 4), Name: "Thanksgiving Day"},
		{Date: clock.NewDate(year, time.December, 25), Name: "Christmas Day"},
	}

	out := make([]Holiday, 0, len(base)+3)
	for _, h := range base {
		out = append(out, h)
		var observed clock.Date
		switch h.Date.Weekday() {
		case time.Saturday:
			observed = h.Date.AddDays(-1)
		case time.Sunday:
			observed = h.Date.AddDays(1)
		default:
			continue
		}
		if observed.Year == year {
			out = append(out, Holiday{Date: observed, Name: h.Name + " (observed)", Observed: true})
		}
	}
	return out
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) clock.Date {
	first := clock.NewDate(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) clock.Date {
	last := clock.NewDate(year, month, clock.DaysIn(year, month))
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDays(-offset)
}

// PlanHolidaySync returns the all-day holiday exceptions doctorID still needs
// for year. A date already covered by one of the doctor's holiday-flagged
// exceptions is skipped, so running the sync twice creates nothing new.
func PlanHolidaySync(doctorID string, existing []Exception, year int) []Exception {
	var have []Exception
	for _, e := range ForDoctor(existing, doctorID) {
		if e.USHoliday {
			have = append(have, e)
		}
	}

	var plan []Exception
	for _, h := range USFederalHolidays(year) {
		if coveredBy(have, h.Date) {
			continue
		}
		e := Exception{
			ID:        uuid.NewString(),
			DoctorID:  doctorID,
			Date:      h.Date,
			AllDay:    true,
			Reason:    h.Name,
			USHoliday: true,
		}
		plan = append(plan, e)
		have = append(have, e)
	}
	return plan
}

func coveredBy(list []Exception, d clock.Date) bool {
	for _, e := range list {
		if e.Covers(d) {
			return true
		}
	}
	return false
}
