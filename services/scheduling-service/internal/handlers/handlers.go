// Package handlers serves the dashboard's scheduling endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clinicapi"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/storage"
)

type Slotter interface {
	Slots(ctx context.Context, q availability.Query) (availability.Result, error)
}

// Schedule is the clinic API surface the handlers read and manage.
type Schedule interface {
	WorkingHours(ctx context.Context, clinicID string) (hours.Week, error)
	SetWorkingHours(ctx context.Context, clinicID string, week hours.Week) error
	Exceptions(ctx context.Context, doctorID string) ([]exceptions.Exception, error)
	CreateException(ctx context.Context, e exceptions.Exception) (exceptions.Exception, error)
	UpdateException(ctx context.Context, e exceptions.Exception) (exceptions.Exception, error)
	DeleteException(ctx context.Context, doctorID, id string) error
	SyncHolidays(ctx context.Context, doctorID string, year int) (clinicapi.SyncResult, error)
	Appointments(ctx context.Context, f model.Filter) ([]model.Appointment, error)
}

// Idempotency runs fn at most once per key; see storage.IdempotencyRepository.
type Idempotency interface {
	Run(ctx context.Context, clinicID, key, requestHash string, fn func(context.Context) (storage.Outcome, error)) (storage.Outcome, bool, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, clinicID, doctorID string, dates ...clock.Date) error
}

type ScheduleNotifier interface {
	ScheduleChanged(ctx context.Context, clinicID, doctorID, cause string, dates ...clock.Date) error
}

type Deps struct {
	Availability Slotter
	Schedule     Schedule
	Bookings     booking.Mutator
	Zone         *clock.Zone
	Logger       *slog.Logger
	Idempotency  Idempotency
	Cache        Invalidator
	Notifier     ScheduleNotifier
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d}
}

// Register mounts every /api/v1 route on mux behind the session middleware.
func (h *Handler) Register(mux *http.ServeMux, verifier *auth.Verifier) {
	guard := func(fn http.HandlerFunc) http.Handler { return verifier.Middleware(fn) }
	mux.Handle("/api/v1/slots", guard(h.Slots))
	mux.Handle("/api/v1/calendar", guard(h.Calendar))
	mux.Handle("/api/v1/appointments", guard(h.Appointments))
	mux.Handle("/api/v1/appointments/book", guard(h.Book))
	mux.Handle("/api/v1/appointments/reschedule", guard(h.Reschedule))
	mux.Handle("/api/v1/appointments/cancel", guard(h.Cancel))
	mux.Handle("/api/v1/clinics/working-hours", guard(h.WorkingHours))
	mux.Handle("/api/v1/doctors/exceptions", guard(h.Exceptions))
	mux.Handle("/api/v1/doctors/exceptions/sync-holidays", guard(h.SyncHolidays))
}

// writeError maps err through the error taxonomy. Server-side failures are
// logged; the client only sees a short message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.HTTPStatus(err)
	switch {
	case errors.Is(err, hours.ErrInvalidHours), errors.Is(err, exceptions.ErrInvalidException), errors.Is(err, clock.ErrInvalidTime):
		code = http.StatusBadRequest
	case errors.Is(err, booking.ErrInvalidState):
		code = http.StatusConflict
	}
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
		msg = http.StatusText(code)
		if code == http.StatusServiceUnavailable {
			msg = "availability service unavailable"
		}
	}
	writeJSON(w, code, errorResponse{Error: msg, Retryable: model.IsRetryable(err) || code == http.StatusServiceUnavailable})
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	writeRaw(w, code, body)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return model.Validationf("invalid json body: %v", err)
	}
	return nil
}

func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// session returns the caller; the middleware guarantees it is present.
func session(r *http.Request) auth.Session {
	s, _ := auth.FromContext(r.Context())
	return s
}

// forDoctor resolves the doctor a request addresses. A doctor session with no
// explicit doctor_id addresses itself.
func forDoctor(r *http.Request, doctorID string) (string, error) {
	s := session(r)
	if doctorID == "" && s.Role() == auth.RoleDoctor {
		doctorID = s.DoctorID()
	}
	if doctorID == "" {
		return "", model.Validationf("doctor_id is required")
	}
	if !s.CanActForDoctor(doctorID) {
		return "", model.ErrForbidden
	}
	return doctorID, nil
}

// forClinic resolves the clinic a request addresses. Doctors are confined to
// the clinic on their token when it carries one.
func forClinic(r *http.Request, clinicID string) (string, error) {
	s := session(r)
	if clinicID == "" {
		clinicID = s.ClinicID()
	}
	if clinicID == "" {
		return "", model.Validationf("clinic_id is required")
	}
	if s.Role() == auth.RoleDoctor && s.ClinicID() != "" && s.ClinicID() != clinicID {
		return "", model.ErrForbidden
	}
	return clinicID, nil
}

func parseDate(raw, field string) (clock.Date, error) {
	if raw == "" {
		return clock.Date{}, model.Validationf("%s is required", field)
	}
	d, err := clock.ParseDate(raw)
	if err != nil {
		return clock.Date{}, model.Validationf("invalid %s %q", field, raw)
	}
	return d, nil
}

// scheduleChanged drops cached availability and records the change. Neither
// failure fails the request that caused it.
func (h *Handler) scheduleChanged(ctx context.Context, clinicID, doctorID, cause string, dates ...clock.Date) {
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, clinicID, doctorID, dates...); err != nil {
			h.Logger.Warn("availability cache invalidation failed", "clinic_id", clinicID, "doctor_id", doctorID, "err", err)
		}
	}
	if h.Notifier != nil {
		if err := h.Notifier.ScheduleChanged(ctx, clinicID, doctorID, cause, dates...); err != nil {
			h.Logger.Warn("schedule change not recorded", "clinic_id", clinicID, "doctor_id", doctorID, "cause", cause, "err", err)
		}
	}
}
