// Package availability turns working hours, exceptions, booked appointments
// and the raw availability reported by the clinic API into the list of slots
// a patient can actually be offered.
package availability

import (
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// Reason explains an empty or closed result. It is empty for an open day.
type Reason string

const (
	ReasonOpen Reason = ""
	// ReasonClosed: the weekly hours mark the day closed.
	ReasonClosed Reason = "closed"
	// ReasonException: an all-day exception blocks the day.
	ReasonException Reason = "exception"
	// ReasonNotAvailable: the availability source reports the doctor unavailable.
	ReasonNotAvailable Reason = "not_available"
	// ReasonPast: the date is before today.
	ReasonPast Reason = "past"
)

type Input struct {
	Date         clock.Date
	DoctorID     string
	Week         hours.Week
	Exceptions   []exceptions.Exception
	Appointments []model.Appointment
	Raw          Day
	// Today and Now are the current date and wall-clock time in the clinic zone.
	Today clock.Date
	Now   clock.TimeOfDay
}

type Result struct {
	Date    clock.Date
	Slots   []clock.TimeOfDay
	Reason  Reason
	Blocked []exceptions.Window
}

// Closed is true when the day offers nothing for a structural reason, as
// opposed to an open day whose slots have all been taken or have passed.
func (r Result) Closed() bool { return r.Reason != ReasonOpen }

// Display renders the slots in the 12-hour form used by the dashboard.
func (r Result) Display() []string {
	out := make([]string, len(r.Slots))
	for i, s := range r.Slots {
		out[i] = s.Display()
	}
	return out
}

// Compute is the slot computation itself. Raw morning slots precede
// afternoon slots and that order is preserved.
func Compute(in Input) Result {
	res := Result{Date: in.Date, Slots: []clock.TimeOfDay{}}

	if in.Date.Before(in.Today) {
		res.Reason = ReasonPast
		return res
	}
	if in.Week.For(in.Date.Weekday()).Closed {
		res.Reason = ReasonClosed
		return res
	}
	allDay, blocked := exceptions.Blocks(in.Exceptions, in.Date)
	if allDay {
		res.Reason = ReasonException
		return res
	}
	res.Blocked = blocked
	if !in.Raw.Available {
		res.Reason = ReasonNotAvailable
		return res
	}

	today := in.Date.Equal(in.Today)
	seen := make(map[clock.TimeOfDay]bool)
	for _, slot := range in.Raw.Slots() {
		switch {
		case seen[slot]:
			continue
		case exceptions.Blocked(blocked, slot):
			continue
		case booked(in.Appointments, in.DoctorID, in.Date, slot):
			continue
		case today && slot <= in.Now:
			continue
		}
		seen[slot] = true
		res.Slots = append(res.Slots, slot)
	}
	return res
}

func booked(appts []model.Appointment, doctorID string, d clock.Date, t clock.TimeOfDay) bool {
	for _, a := range appts {
		if a.Occupies(doctorID, d, t) {
			return true
		}
	}
	return false
}
