package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

type workingHoursBody struct {
	ClinicID     string      `json:"clinic_id,omitempty"`
	WorkingHours []hours.Row `json:"working_hours"`
}

// WorkingHours answers GET and PUT /api/v1/clinics/working-hours?clinic_id.
// A PUT replaces the whole week and drops the clinic's cached availability.
func (h *Handler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	clinicID, err := forClinic(r, query(r, "clinic_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		week, err := h.Schedule.WorkingHours(r.Context(), clinicID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, workingHoursBody{ClinicID: clinicID, WorkingHours: week.Rows()})
		return
	}

	var body workingHoursBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(body.WorkingHours) == 0 {
		h.writeError(w, r, model.Validationf("working_hours is required"))
		return
	}
	week, err := hours.FromRows(body.WorkingHours)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := week.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Schedule.SetWorkingHours(r.Context(), clinicID, week); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.scheduleChanged(r.Context(), clinicID, "", "working_hours")
	writeJSON(w, http.StatusOK, workingHoursBody{ClinicID: clinicID, WorkingHours: week.Rows()})
}

// Exceptions answers GET, POST, PUT and DELETE on
// /api/v1/doctors/exceptions?doctor_id[&id].
func (h *Handler) Exceptions(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete) {
		return
	}
	doctorID, err := forDoctor(r, query(r, "doctor_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		list, err := h.Schedule.Exceptions(ctx, doctorID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out := make([]exceptionView, 0, len(list))
		for _, e := range list {
			out = append(out, newExceptionView(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"exceptions": out})

	case http.MethodPost, http.MethodPut:
		var in exceptionInput
		if err := decodeBody(r, &in); err != nil {
			h.writeError(w, r, err)
			return
		}
		if id := query(r, "id"); id != "" {
			in.ID = id
		}
		e, err := in.toException(doctorID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		code := http.StatusCreated
		if r.Method == http.MethodPut {
			if e.ID == "" {
				h.writeError(w, r, model.Validationf("exception id is required"))
				return
			}
			e, err = h.Schedule.UpdateException(ctx, e)
			code = http.StatusOK
		} else {
			e, err = h.Schedule.CreateException(ctx, e)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.scheduleChanged(ctx, "", doctorID, "exception", datesOf(e)...)
		writeJSON(w, code, newExceptionView(e))

	case http.MethodDelete:
		id := query(r, "id")
		if id == "" {
			h.writeError(w, r, model.Validationf("id is required"))
			return
		}
		if err := h.Schedule.DeleteException(ctx, doctorID, id); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.scheduleChanged(ctx, "", doctorID, "exception")
		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncHolidays answers POST /api/v1/doctors/exceptions/sync-holidays?doctor_id&year.
// Year defaults to the current year in the clinic timezone.
func (h *Handler) SyncHolidays(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	doctorID, err := forDoctor(r, query(r, "doctor_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	year := h.Zone.Today().Year
	if raw := strings.TrimSpace(query(r, "year")); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil || year <= 0 {
			h.writeError(w, r, model.Validationf("invalid year %q", raw))
			return
		}
	}
	res, err := h.Schedule.SyncHolidays(r.Context(), doctorID, year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Created > 0 {
		h.scheduleChanged(r.Context(), "", doctorID, "holiday_sync")
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "year": year, "created": res.Created, "skipped": res.Skipped})
}
