package availability

import (
	"context"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// Day is the raw availability for one doctor and date, already split into
// morning and afternoon buckets.
type Day struct {
	Date      clock.Date
	Available bool
	Morning   []clock.TimeOfDay
	Afternoon []clock.TimeOfDay
}

func (d Day) Slots() []clock.TimeOfDay {
	out := make([]clock.TimeOfDay, 0, len(d.Morning)+len(d.Afternoon))
	out = append(out, d.Morning...)
	return append(out, d.Afternoon...)
}

type Query struct {
	ClinicID string
	DoctorID string
	Date     clock.Date
}

// Source reports raw availability. The clinic API client is the production
// Source; LocalSource derives it from working hours.
type Source interface {
	Availability(ctx context.Context, q Query) (Day, error)
}

// Directory supplies the schedule inputs the computation needs.
type Directory interface {
	WorkingHours(ctx context.Context, clinicID string) (hours.Week, error)
	Exceptions(ctx context.Context, doctorID string) ([]exceptions.Exception, error)
	Appointments(ctx context.Context, f model.Filter) ([]model.Appointment, error)
}

const noon clock.TimeOfDay = 12 * 60

// LocalSource generates raw slots from the clinic's working hours minus the
// doctor's partial-day exceptions and booked appointments, for use without a
// remote availability endpoint.
type LocalSource struct {
	Dir         Directory
	SlotMinutes int
	StepMinutes int
}

func (s LocalSource) Availability(ctx context.Context, q Query) (Day, error) {
	week, err := s.Dir.WorkingHours(ctx, q.ClinicID)
	if err != nil {
		return Day{}, err
	}
	excs, err := s.Dir.Exceptions(ctx, q.DoctorID)
	if err != nil {
		return Day{}, err
	}

	day := Day{Date: q.Date}
	open, closeAt, ok := week.Window(q.Date.Weekday())
	if !ok {
		return day, nil
	}
	allDay, blocked := exceptions.Blocks(exceptions.ForDoctor(excs, q.DoctorID), q.Date)
	if allDay {
		return day, nil
	}

	duration := s.SlotMinutes
	if duration <= 0 {
		duration = 30
	}
	step := s.StepMinutes
	if step <= 0 {
		step = duration
	}
	booked, err := s.Dir.Appointments(ctx, model.Filter{ClinicID: q.ClinicID, DoctorID: q.DoctorID, From: &q.Date, To: &q.Date})
	if err != nil {
		return Day{}, err
	}
	windows := SubtractBlocks(Interval{Start: open, End: closeAt}, blocked)
	for _, slot := range AvailableSlots(windows, duration, step, busyIntervals(booked, q, duration)) {
		if slot < noon {
			day.Morning = append(day.Morning, slot)
		} else {
			day.Afternoon = append(day.Afternoon, slot)
		}
	}
	day.Available = len(day.Morning)+len(day.Afternoon) > 0
	return day, nil
}

// busyIntervals turns the doctor's live bookings on q.Date into
// [start, start+duration) intervals.
func busyIntervals(appts []model.Appointment, q Query, duration int) []Interval {
	var out []Interval
	for _, a := range appts {
		if !a.Status.OccupiesSlot() || a.DoctorID != q.DoctorID || !a.Date.Equal(q.Date) {
			continue
		}
		out = append(out, Interval{Start: a.Time, End: a.Time + clock.TimeOfDay(duration)})
	}
	return out
}
