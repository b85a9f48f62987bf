package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/storage"
)

type bookInput struct {
	ClinicID  string `json:"clinic_id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Phone     string `json:"phone"`
}

func (in bookInput) request(r *http.Request) (booking.BookRequest, error) {
	doctorID, err := forDoctor(r, strings.TrimSpace(in.DoctorID))
	if err != nil {
		return booking.BookRequest{}, err
	}
	clinicID, err := forClinic(r, strings.TrimSpace(in.ClinicID))
	if err != nil {
		return booking.BookRequest{}, err
	}
	date, err := parseDate(strings.TrimSpace(in.Date), "date")
	if err != nil {
		return booking.BookRequest{}, err
	}
	if strings.TrimSpace(in.Time) == "" {
		return booking.BookRequest{}, model.Validationf("time is required")
	}
	slot, err := clock.Parse(in.Time)
	if err != nil {
		return booking.BookRequest{}, model.Validationf("invalid time %q", in.Time)
	}
	return booking.BookRequest{
		ClinicID:  clinicID,
		DoctorID:  doctorID,
		PatientID: strings.TrimSpace(in.PatientID),
		Date:      date,
		Slot:      slot,
		Phone:     strings.TrimSpace(in.Phone),
	}, nil
}

type rescheduleInput struct {
	AppointmentID string `json:"appointment_id"`
	PreviousDate  string `json:"previous_date"`
	bookInput
}

type cancelInput struct {
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	Phone         string `json:"phone"`
	Date          string `json:"date"`
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// Book answers POST /api/v1/appointments/book. An Idempotency-Key header
// makes a retried request replay the first response.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	raw, in, ok := readInput[bookInput](h, w, r)
	if !ok {
		return
	}
	req, err := in.request(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.once(w, r, req.ClinicID, raw, http.StatusCreated, func(ctx context.Context) (string, any, error) {
		appt, err := h.Bookings.Book(ctx, req)
		if err != nil {
			return "", nil, err
		}
		return appt.ID, newAppointmentView(appt), nil
	})
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	raw, in, ok := readInput[rescheduleInput](h, w, r)
	if !ok {
		return
	}
	base, err := in.request(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req := booking.RescheduleRequest{AppointmentID: strings.TrimSpace(in.AppointmentID), BookRequest: base}
	if in.PreviousDate != "" {
		prev, err := parseDate(in.PreviousDate, "previous_date")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.PreviousDate = &prev
	}
	h.once(w, r, req.ClinicID, raw, http.StatusOK, func(ctx context.Context) (string, any, error) {
		appt, err := h.Bookings.Reschedule(ctx, req)
		if err != nil {
			return "", nil, err
		}
		return appt.ID, newAppointmentView(appt), nil
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	raw, in, ok := readInput[cancelInput](h, w, r)
	if !ok {
		return
	}
	doctorID, err := forDoctor(r, strings.TrimSpace(in.DoctorID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clinicID, err := forClinic(r, strings.TrimSpace(in.ClinicID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req := booking.CancelRequest{
		AppointmentID: strings.TrimSpace(in.AppointmentID),
		ClinicID:      clinicID,
		DoctorID:      doctorID,
		PatientID:     strings.TrimSpace(in.PatientID),
		Phone:         strings.TrimSpace(in.Phone),
	}
	if in.Date != "" {
		d, err := parseDate(in.Date, "date")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Date = &d
	}
	h.once(w, r, clinicID, raw, http.StatusOK, func(ctx context.Context) (string, any, error) {
		if err := h.Bookings.Cancel(ctx, req); err != nil {
			return "", nil, err
		}
		return req.AppointmentID, cancelResponse{AppointmentID: req.AppointmentID, Status: string(model.StatusCancelled)}, nil
	})
}

func readInput[T any](h *Handler, w http.ResponseWriter, r *http.Request) ([]byte, T, bool) {
	var in T
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, in, false
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		h.writeError(w, r, model.Validationf("invalid json body: %v", err))
		return nil, in, false
	}
	return raw, in, true
}

// once runs fn and writes its result. With an Idempotency-Key header and a
// configured store, a repeated key replays the stored response instead.
// Failures are never stored, so a failed request may be retried with its key.
func (h *Handler) once(w http.ResponseWriter, r *http.Request, clinicID string, raw []byte, code int, fn func(context.Context) (string, any, error)) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.Idempotency == nil {
		_, v, err := fn(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, code, v)
		return
	}

	sum := sha256.Sum256(append([]byte(r.URL.Path+"\n"), raw...))
	out, replayed, err := h.Idempotency.Run(r.Context(), clinicID, key, hex.EncodeToString(sum[:]), func(ctx context.Context) (storage.Outcome, error) {
		id, v, err := fn(ctx)
		if err != nil {
			return storage.Outcome{}, err
		}
		body, err := json.Marshal(v)
		if err != nil {
			return storage.Outcome{}, err
		}
		return storage.Outcome{AppointmentID: id, StatusCode: code, Body: body}, nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		h.Logger.Info("idempotent replay", "key", key, "appointment_id", out.AppointmentID)
	}
	writeRaw(w, out.StatusCode, out.Body)
}
