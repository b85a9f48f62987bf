package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// API is the clinic API's booking surface.
type API interface {
	Book(ctx context.Context, call BookCall) (model.Appointment, error)
	Reschedule(ctx context.Context, call RescheduleCall) (model.Appointment, error)
	Cancel(ctx context.Context, call CancelCall) error
}

type ChangeKind string

const (
	ChangeBooked      ChangeKind = "booked"
	ChangeRescheduled ChangeKind = "rescheduled"
	ChangeCancelled   ChangeKind = "cancelled"
	// ChangeConflict: the clinic API reported the slot taken; nothing changed locally.
	ChangeConflict ChangeKind = "conflict"
)

type Change struct {
	Kind        ChangeKind
	Appointment model.Appointment
	// PreviousDate is set for reschedules when the old date is known.
	PreviousDate *clock.Date
	At           time.Time
}

// Dates lists the days whose availability the change affects.
func (c Change) Dates() []clock.Date {
	var out []clock.Date
	if !c.Appointment.Date.IsZero() {
		out = append(out, c.Appointment.Date)
	}
	if c.PreviousDate != nil && !c.PreviousDate.Equal(c.Appointment.Date) {
		out = append(out, *c.PreviousDate)
	}
	return out
}

// Observer is told about confirmed changes. Errors are logged; the change
// already happened upstream and is not rolled back.
type Observer interface {
	AppointmentChanged(ctx context.Context, c Change) error
}

type ObserverFunc func(ctx context.Context, c Change) error

func (f ObserverFunc) AppointmentChanged(ctx context.Context, c Change) error { return f(ctx, c) }

// Service performs book, reschedule and cancel against the clinic API. It
// holds no session state; Workflow and the HTTP handlers both call into it.
type Service struct {
	api       API
	guard     Guard
	zone      *clock.Zone
	timeout   time.Duration
	observers []Observer
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithCallTimeout(d time.Duration) ServiceOption { return func(s *Service) { s.timeout = d } }

func WithObservers(o ...Observer) ServiceOption {
	return func(s *Service) { s.observers = append(s.observers, o...) }
}

func WithServiceLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

func NewService(api API, guard Guard, zone *clock.Zone, opts ...ServiceOption) *Service {
	s := &Service{api: api, guard: guard, zone: zone, timeout: 15 * time.Second, logger: slog.Default()}
	if s.guard == nil {
		s.guard = NewLocks()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// checkFuture rejects a slot that is not strictly after now.
func (s *Service) checkFuture(d clock.Date, t clock.TimeOfDay) error {
	if !s.zone.At(d, t).After(s.zone.Now()) {
		return fmt.Errorf("%w: %s %s", ErrSlotInPast, d, t.Display())
	}
	return nil
}

func (s *Service) Book(ctx context.Context, r BookRequest) (model.Appointment, error) {
	if err := r.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkFuture(r.Date, r.Slot); err != nil {
		return model.Appointment{}, err
	}
	release, err := s.guard.Acquire(ctx, slotKey(r))
	if err != nil {
		return model.Appointment{}, err
	}
	defer release()

	cctx, cancel := s.callContext(ctx)
	defer cancel()
	appt, err := s.api.Book(cctx, r.call())
	if err != nil {
		return model.Appointment{}, s.failed(ctx, "book", err, fill(model.Appointment{}, r))
	}

	appt = fill(appt, r)
	s.notify(ctx, Change{Kind: ChangeBooked, Appointment: appt, At: s.zone.Now()})
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date.String(), "time", appt.Time.Clock24())
	return appt, nil
}

func (s *Service) Reschedule(ctx context.Context, r RescheduleRequest) (model.Appointment, error) {
	if err := r.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkFuture(r.Date, r.Slot); err != nil {
		return model.Appointment{}, err
	}
	release, err := s.guard.Acquire(ctx, appointmentKey(r.AppointmentID))
	if err != nil {
		return model.Appointment{}, err
	}
	defer release()

	cctx, cancel := s.callContext(ctx)
	defer cancel()
	appt, err := s.api.Reschedule(cctx, RescheduleCall{AppointmentID: r.AppointmentID, BookCall: r.call()})
	if err != nil {
		return model.Appointment{}, s.failed(ctx, "reschedule", err, fill(model.Appointment{ID: r.AppointmentID}, r.BookRequest))
	}

	if appt.ID == "" {
		appt.ID = r.AppointmentID
	}
	appt = fill(appt, r.BookRequest)
	s.notify(ctx, Change{Kind: ChangeRescheduled, Appointment: appt, PreviousDate: r.PreviousDate, At: s.zone.Now()})
	s.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date.String(), "time", appt.Time.Clock24())
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, r CancelRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	release, err := s.guard.Acquire(ctx, appointmentKey(r.AppointmentID))
	if err != nil {
		return err
	}
	defer release()

	cctx, cancel := s.callContext(ctx)
	defer cancel()
	err = s.api.Cancel(cctx, CancelCall{
		AppointmentID: r.AppointmentID,
		ClinicID:      r.ClinicID,
		DoctorID:      r.DoctorID,
		PatientID:     r.PatientID,
		Phone:         r.Phone,
	})
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}

	appt := model.Appointment{
		ID:        r.AppointmentID,
		ClinicID:  r.ClinicID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Phone:     r.Phone,
		Status:    model.StatusCancelled,
	}
	if r.Date != nil {
		appt.Date = *r.Date
	}
	s.notify(ctx, Change{Kind: ChangeCancelled, Appointment: appt, At: s.zone.Now()})
	s.logger.Info("appointment cancelled", "appointment_id", r.AppointmentID, "doctor_id", r.DoctorID)
	return nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// failed maps a conflict onto ErrSlotTaken and tells observers so the stale
// day can be refreshed. Everything else is returned as is.
func (s *Service) failed(ctx context.Context, op string, err error, attempted model.Appointment) error {
	if errors.Is(err, model.ErrConflict) {
		s.notify(ctx, Change{Kind: ChangeConflict, Appointment: attempted, At: s.zone.Now()})
		return fmt.Errorf("%s: %w: %w", op, ErrSlotTaken, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) notify(ctx context.Context, c Change) {
	for _, o := range s.observers {
		if err := o.AppointmentChanged(ctx, c); err != nil {
			s.logger.Warn("appointment observer failed", "kind", string(c.Kind), "appointment_id", c.Appointment.ID, "err", err)
		}
	}
}

// fill completes a sparse API response with what was requested.
func fill(a model.Appointment, r BookRequest) model.Appointment {
	if a.ClinicID == "" {
		a.ClinicID = r.ClinicID
	}
	if a.DoctorID == "" {
		a.DoctorID = r.DoctorID
	}
	if a.PatientID == "" {
		a.PatientID = r.PatientID
	}
	if a.Phone == "" {
		a.Phone = r.Phone
	}
	if a.Date.IsZero() {
		a.Date = r.Date
		a.Time = r.Slot
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	return a
}
