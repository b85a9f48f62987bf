package outbox

import (
	"encoding/json"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked      = "clinic.appointment.booked.v1"
	EventAppointmentRescheduled = "clinic.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "clinic.appointment.cancelled.v1"
	EventScheduleChanged        = "clinic.schedule.changed.v1"
)

// AppointmentPayload is the body of the appointment events.
type AppointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	ClinicID      string    `json:"clinic_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	Date          string    `json:"date,omitempty"`
	Time          string    `json:"time,omitempty"`
	Status        string    `json:"status"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ScheduleChanged tells every replica which days of a doctor's schedule
// must be recomputed.
type ScheduleChanged struct {
	ClinicID   string    `json:"clinic_id,omitempty"`
	DoctorID   string    `json:"doctor_id"`
	Dates      []string  `json:"dates,omitempty"`
	Cause      string    `json:"cause"`
	OccurredAt time.Time `json:"occurred_at"`
}

func eventTypeFor(kind booking.ChangeKind) (string, bool) {
	switch kind {
	case booking.ChangeBooked:
		return EventAppointmentBooked, true
	case booking.ChangeRescheduled:
		return EventAppointmentRescheduled, true
	case booking.ChangeCancelled:
		return EventAppointmentCancelled, true
	}
	return "", false
}

func appointmentPayload(c booking.Change) ([]byte, error) {
	a := c.Appointment
	p := AppointmentPayload{
		AppointmentID: a.ID,
		ClinicID:      a.ClinicID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Status:        string(a.Status),
		OccurredAt:    c.At.UTC(),
	}
	if !a.Date.IsZero() {
		p.Date = a.Date.String()
		p.Time = a.Time.Clock24()
	}
	if c.PreviousDate != nil {
		p.PreviousDate = c.PreviousDate.String()
	}
	return json.Marshal(p)
}
