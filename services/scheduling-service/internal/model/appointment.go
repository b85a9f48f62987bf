package model

import (
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

// Appointment is normalized at the API boundary: Date and Time are the
// clinic-local wall clock of the appointment.
type Appointment struct {
	ID          string
	DoctorID    string
	ClinicID    string
	PatientID   string
	Date        clock.Date
	Time        clock.TimeOfDay
	Status      Status
	Phone       string
	PatientName string
	DoctorName  string
}

func (a Appointment) Start(loc *time.Location) time.Time { return a.Date.At(a.Time, loc) }

// Occupies reports whether a holds doctorID's slot at t on d.
func (a Appointment) Occupies(doctorID string, d clock.Date, t clock.TimeOfDay) bool {
	return a.Status.OccupiesSlot() && a.DoctorID == doctorID && a.Date.Equal(d) && a.Time == t
}

// Filter scopes an appointment listing. Empty fields do not filter.
type Filter struct {
	ClinicID  string
	DoctorID  string
	PatientID string
	From      *clock.Date
	To        *clock.Date
}

func (f Filter) Match(a Appointment) bool {
	switch {
	case f.ClinicID != "" && a.ClinicID != "" && a.ClinicID != f.ClinicID:
		return false
	case f.DoctorID != "" && a.DoctorID != f.DoctorID:
		return false
	case f.PatientID != "" && a.PatientID != f.PatientID:
		return false
	case f.From != nil && a.Date.Before(*f.From):
		return false
	case f.To != nil && a.Date.After(*f.To):
		return false
	}
	return true
}
