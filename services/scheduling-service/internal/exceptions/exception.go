// Package exceptions models date-scoped overrides of a doctor's working
// hours: days off, partial-day blocks and synced public holidays.
package exceptions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

var ErrInvalidException = errors.New("invalid availability exception")

type Exception struct {
	ID       string
	DoctorID string
	Date     clock.Date
	// EndDate is inclusive; nil means a single-day exception.
	EndDate   *clock.Date
	AllDay    bool
	Start     *clock.TimeOfDay
	End       *clock.TimeOfDay
	Reason    string
	USHoliday bool
}

func (e Exception) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("%w: exception date is required", ErrInvalidException)
	}
	if e.EndDate != nil && e.EndDate.Before(e.Date) {
		return fmt.Errorf("%w: end date %s precedes %s", ErrInvalidException, e.EndDate, e.Date)
	}
	if e.AllDay {
		return nil
	}
	if e.Start == nil || e.End == nil {
		return fmt.Errorf("%w: start and end time are required unless all day", ErrInvalidException)
	}
	if !e.Start.Valid() || !e.End.Valid() || *e.Start >= *e.End {
		return fmt.Errorf("%w: start %s must precede end %s", ErrInvalidException, e.Start, e.End)
	}
	return nil
}

// Last is the final date the exception applies to.
func (e Exception) Last() clock.Date {
	if e.EndDate != nil {
		return *e.EndDate
	}
	return e.Date
}

func (e Exception) Covers(d clock.Date) bool {
	return !d.Before(e.Date) && !d.After(e.Last())
}

// Window is a half-open blocked range [Start, End) within a day.
type Window struct {
	Start clock.TimeOfDay
	End   clock.TimeOfDay
}

func (w Window) Contains(t clock.TimeOfDay) bool { return t >= w.Start && t < w.End }

// Blocks collects the exceptions covering d. An all-day match blocks the
// whole day and wins over any partial windows; otherwise the partial windows
// are merged into a sorted, non-overlapping union.
func Blocks(list []Exception, d clock.Date) (allDay bool, windows []Window) {
	for _, e := range list {
		if !e.Covers(d) {
			continue
		}
		if e.AllDay {
			return true, nil
		}
		if e.Start == nil || e.End == nil || *e.Start >= *e.End {
			continue
		}
		windows = append(windows, Window{Start: *e.Start, End: *e.End})
	}
	return false, merge(windows)
}

// Blocked reports whether t falls inside any window.
func Blocked(windows []Window, t clock.TimeOfDay) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func merge(windows []Window) []Window {
	if len(windows) < 2 {
		return windows
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	out := windows[:1]
	for _, w := range windows[1:] {
		last := &out[len(out)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// ForDoctor filters list down to doctorID's exceptions. Exceptions without a
// doctor id are assumed to already be scoped.
func ForDoctor(list []Exception, doctorID string) []Exception {
	out := make([]Exception, 0, len(list))
	for _, e := range list {
		if e.DoctorID == "" || e.DoctorID == doctorID {
			out = append(out, e)
		}
	}
	return out
}
