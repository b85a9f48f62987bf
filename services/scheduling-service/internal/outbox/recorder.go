package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

type Appender interface {
	Append(ctx context.Context, evt Event) error
}

// Recorder turns confirmed appointment and schedule changes into outbox events.
type Recorder struct {
	events Appender
	now    func() time.Time
}

func NewRecorder(events Appender) *Recorder {
	return &Recorder{events: events, now: time.Now}
}

var _ booking.Observer = (*Recorder)(nil)

// AppointmentChanged records booked, rescheduled and cancelled changes.
// Conflicts changed nothing upstream and are not recorded.
func (r *Recorder) AppointmentChanged(ctx context.Context, c booking.Change) error {
	eventType, ok := eventTypeFor(c.Kind)
	if !ok {
		return nil
	}
	if c.At.IsZero() {
		c.At = r.now()
	}
	payload, err := appointmentPayload(c)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	return r.events.Append(ctx, Event{
		AggregateType: "appointment",
		AggregateID:   c.Appointment.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

// ScheduleChanged records that dates of doctorID's schedule changed. No
// dates means the whole schedule.
func (r *Recorder) ScheduleChanged(ctx context.Context, clinicID, doctorID, cause string, dates ...clock.Date) error {
	msg := ScheduleChanged{ClinicID: clinicID, DoctorID: doctorID, Cause: cause, OccurredAt: r.now().UTC()}
	for _, d := range dates {
		msg.Dates = append(msg.Dates, d.String())
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", EventScheduleChanged, err)
	}
	aggregate := doctorID
	if aggregate == "" {
		aggregate = clinicID
	}
	return r.events.Append(ctx, Event{
		AggregateType: "schedule",
		AggregateID:   aggregate,
		EventType:     EventScheduleChanged,
		Payload:       payload,
	})
}
