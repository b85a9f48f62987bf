package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/calendar"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// Slots answers GET /api/v1/slots?clinic_id&doctor_id&date.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	doctorID, err := forDoctor(r, query(r, "doctor_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clinicID, err := forClinic(r, query(r, "clinic_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := parseDate(query(r, "date"), "date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Availability.Slots(r.Context(), availability.Query{ClinicID: clinicID, DoctorID: doctorID, Date: date})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSlotsResponse(doctorID, res))
}

// Calendar answers GET /api/v1/calendar?doctor_id&clinic_id&year&month. Year
// and month default to the current month in the clinic timezone.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	doctorID, err := forDoctor(r, query(r, "doctor_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	today := h.Zone.Today()
	year, month := today.Year, today.Month
	if raw := query(r, "year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, r, model.Validationf("invalid year %q", raw))
			return
		}
	}
	if raw := query(r, "month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, model.Validationf("invalid month %q", raw))
			return
		}
		month = time.Month(m)
	}
	if month < time.January || month > time.December {
		h.writeError(w, r, model.Validationf("month %d out of range", month))
		return
	}

	from := clock.NewDate(year, month, 1)
	to := clock.NewDate(year, month, clock.DaysIn(year, month))
	clinicID := query(r, "clinic_id")
	if clinicID != "" {
		if clinicID, err = forClinic(r, clinicID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	appts, err := h.Schedule.Appointments(r.Context(), model.Filter{
		ClinicID: clinicID,
		DoctorID: doctorID,
		From:     &from,
		To:       &to,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	grid, err := calendar.Build(year, month, appts, today)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCalendarResponse(grid, today))
}

type appointmentsResponse struct {
	Upcoming []appointmentView `json:"upcoming"`
	Past     []appointmentView `json:"past"`
}

// Appointments answers GET /api/v1/appointments with the caller's listing
// split into upcoming and past.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	f := model.Filter{
		ClinicID:  query(r, "clinic_id"),
		DoctorID:  query(r, "doctor_id"),
		PatientID: query(r, "patient_id"),
	}
	if f.ClinicID != "" {
		clinicID, err := forClinic(r, f.ClinicID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.ClinicID = clinicID
	}
	if f.DoctorID != "" || session(r).Role() == auth.RoleDoctor {
		doctorID, err := forDoctor(r, f.DoctorID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.DoctorID = doctorID
	}
	if f.ClinicID == "" && f.DoctorID == "" && f.PatientID == "" {
		h.writeError(w, r, model.Validationf("one of clinic_id, doctor_id or patient_id is required"))
		return
	}

	appts, err := h.Schedule.Appointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	upcoming, past := booking.Partition(appts, h.Zone.Today())
	writeJSON(w, http.StatusOK, appointmentsResponse{Upcoming: appointmentViews(upcoming), Past: appointmentViews(past)})
}
