package booking

import (
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

type BookRequest struct {
	ClinicID  string
	DoctorID  string
	PatientID string
	Date      clock.Date
	Slot      clock.TimeOfDay
	Phone     string
}

func (r BookRequest) Validate() error {
	var missing []string
	if r.ClinicID == "" {
		missing = append(missing, "clinic id")
	}
	if r.DoctorID == "" {
		missing = append(missing, "doctor id")
	}
	if r.PatientID == "" {
		missing = append(missing, "patient id")
	}
	if r.Date.IsZero() {
		missing = append(missing, "date")
	}
	if r.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return model.Validationf("missing %v", missing)
	}
	if !r.Slot.Valid() {
		return model.Validationf("slot %d out of range", int(r.Slot))
	}
	return nil
}

func (r BookRequest) call() BookCall {
	return BookCall{
		ClinicID:  r.ClinicID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Date:      r.Date.String(),
		Time:      r.Slot.Clock24(),
		Phone:     r.Phone,
	}
}

type RescheduleRequest struct {
	AppointmentID string
	BookRequest
	// PreviousDate, when known, lets observers refresh the day the appointment left.
	PreviousDate *clock.Date
}

func (r RescheduleRequest) Validate() error {
	if r.AppointmentID == "" {
		return model.Validationf("missing appointment id")
	}
	return r.BookRequest.Validate()
}

type CancelRequest struct {
	AppointmentID string
	ClinicID      string
	DoctorID      string
	PatientID     string
	Phone         string
	// Date, when known, lets observers refresh the freed day.
	Date *clock.Date
}

func (r CancelRequest) Validate() error {
	if r.AppointmentID == "" || r.ClinicID == "" || r.DoctorID == "" || r.PatientID == "" {
		return model.Validationf("appointment, clinic, doctor and patient ids are required")
	}
	return nil
}

// BookCall is what goes over the wire: date as YYYY-MM-DD, time in 24-hour form.
type BookCall struct {
	ClinicID  string `json:"clinic_id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Phone     string `json:"phone"`
}

type RescheduleCall struct {
	AppointmentID string `json:"appointment_id"`
	BookCall
}

type CancelCall struct {
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	Phone         string `json:"phone,omitempty"`
}
