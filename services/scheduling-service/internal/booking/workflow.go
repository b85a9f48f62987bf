package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// State is where an interactive booking session stands.
type State int

const (
	StateIdle State = iota
	StatePickingDate
	StatePickingSlot
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePickingDate:
		return "picking_date"
	case StatePickingSlot:
		return "picking_slot"
	case StateSubmitting:
		return "submitting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Mode int

const (
	ModeBook Mode = iota
	ModeReschedule
)

func (m Mode) String() string {
	if m == ModeReschedule {
		return "reschedule"
	}
	return "book"
}

type SlotComputer interface {
	Slots(ctx context.Context, q availability.Query) (availability.Result, error)
}

// Mutator is the write side the workflow submits through; *Service
// implements it.
type Mutator interface {
	Book(ctx context.Context, r BookRequest) (model.Appointment, error)
	Reschedule(ctx context.Context, r RescheduleRequest) (model.Appointment, error)
	Cancel(ctx context.Context, r CancelRequest) error
}

// Target names who a new appointment is for.
type Target struct {
	ClinicID  string
	DoctorID  string
	PatientID string
	Phone     string
}

// Snapshot is a copy of the workflow's visible state.
type Snapshot struct {
	State         State
	Mode          Mode
	Target        Target
	AppointmentID string
	Date          clock.Date
	Result        availability.Result
	Selected      *clock.TimeOfDay
	Err           error
}

// Workflow drives one session's book and reschedule interaction:
// idle, picking a date, picking a slot, submitting, back to idle. Only the
// latest date pick may publish slots; an earlier fetch that finishes late is
// dropped with ErrStale.
type Workflow struct {
	slots   SlotComputer
	mutator Mutator
	agenda  *Agenda
	zone    *clock.Zone
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	mode     Mode
	target   Target
	apptID   string
	prevDate *clock.Date
	date     clock.Date
	result   availability.Result
	selected *clock.TimeOfDay
	lastErr  error
	gen      uint64
	cancel   context.CancelFunc
	// cancelling holds appointment ids with a cancel call in flight.
	cancelling map[string]struct{}
}

type WorkflowOption func(*Workflow)

// WithStepTimeout bounds each fetch and submit so no async state can hang.
func WithStepTimeout(d time.Duration) WorkflowOption { return func(w *Workflow) { w.timeout = d } }

func WithWorkflowLogger(l *slog.Logger) WorkflowOption { return func(w *Workflow) { w.logger = l } }

func NewWorkflow(slots SlotComputer, mutator Mutator, agenda *Agenda, zone *clock.Zone, opts ...WorkflowOption) *Workflow {
	if agenda == nil {
		agenda = NewAgenda(nil)
	}
	w := &Workflow{
		slots:      slots,
		mutator:    mutator,
		agenda:     agenda,
		zone:       zone,
		timeout:    20 * time.Second,
		logger:     slog.Default(),
		cancelling: map[string]struct{}{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Workflow) Agenda() *Agenda { return w.agenda }

// OpenBook starts a new booking for t.
func (w *Workflow) OpenBook(t Target) error {
	if t.ClinicID == "" || t.DoctorID == "" || t.PatientID == "" {
		return model.Validationf("clinic, doctor and patient ids are required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return fmt.Errorf("%w: open while %s", ErrInvalidState, w.state)
	}
	w.reset()
	w.state = StatePickingDate
	w.mode = ModeBook
	w.target = t
	return nil
}

// OpenReschedule starts moving an appointment already on the agenda.
func (w *Workflow) OpenReschedule(appointmentID string) error {
	appt, ok := w.agenda.Get(appointmentID)
	if !ok {
		return fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	if err := appt.Status.CanTransition(model.StatusRescheduled); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return fmt.Errorf("%w: open while %s", ErrInvalidState, w.state)
	}
	w.reset()
	w.state = StatePickingDate
	w.mode = ModeReschedule
	w.apptID = appt.ID
	prev := appt.Date
	w.prevDate = &prev
	w.target = Target{ClinicID: appt.ClinicID, DoctorID: appt.DoctorID, PatientID: appt.PatientID, Phone: appt.Phone}
	return nil
}

// PickDate selects d, clears any chosen slot and fetches d's slots. A pick
// made while an earlier fetch is running cancels that fetch.
func (w *Workflow) PickDate(ctx context.Context, d clock.Date) (availability.Result, error) {
	w.mu.Lock()
	if w.state != StatePickingDate && w.state != StatePickingSlot {
		state := w.state
		w.mu.Unlock()
		return availability.Result{}, fmt.Errorf("%w: pick date while %s", ErrInvalidState, state)
	}
	if d.IsZero() {
		w.mu.Unlock()
		return availability.Result{}, model.Validationf("date is required")
	}
	if d.Before(w.zone.Today()) {
		w.mu.Unlock()
		return availability.Result{}, model.Validationf("date %s is in the past", d)
	}
	fctx, gen := w.beginFetch(ctx, d)
	q := availability.Query{ClinicID: w.target.ClinicID, DoctorID: w.target.DoctorID, Date: d}
	w.mu.Unlock()

	return w.fetch(fctx, gen, q)
}

// beginFetch must be called with mu held.
func (w *Workflow) beginFetch(ctx context.Context, d clock.Date) (context.Context, uint64) {
	if w.cancel != nil {
		w.cancel()
	}
	w.gen++
	var fctx context.Context
	if w.timeout > 0 {
		fctx, w.cancel = context.WithTimeout(ctx, w.timeout)
	} else {
		fctx, w.cancel = context.WithCancel(ctx)
	}
	w.state = StatePickingSlot
	w.date = d
	w.selected = nil
	w.result = availability.Result{Date: d}
	w.lastErr = nil
	return fctx, w.gen
}

func (w *Workflow) fetch(ctx context.Context, gen uint64, q availability.Query) (availability.Result, error) {
	res, err := w.slots.Slots(ctx, q)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		w.logger.Debug("dropping superseded slot fetch", "date", q.Date.String())
		return availability.Result{}, ErrStale
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if err != nil {
		w.lastErr = err
		return availability.Result{}, err
	}
	w.result = res
	return res, nil
}

// SelectSlot chooses one of the slots offered for the current date.
func (w *Workflow) SelectSlot(t clock.TimeOfDay) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePickingSlot {
		return fmt.Errorf("%w: select slot while %s", ErrInvalidState, w.state)
	}
	if !slices.Contains(w.result.Slots, t) {
		return model.Validationf("%s is not offered on %s", t.Display(), w.date)
	}
	w.selected = &t
	return nil
}

// Submit books or reschedules into the selected slot. When the slot turns
// out to be taken or already past, the session returns to slot picking with
// freshly fetched slots and the error is returned.
func (w *Workflow) Submit(ctx context.Context) (model.Appointment, error) {
	w.mu.Lock()
	switch {
	case w.state == StateSubmitting:
		w.mu.Unlock()
		return model.Appointment{}, ErrInFlight
	case w.state != StatePickingSlot:
		state := w.state
		w.mu.Unlock()
		return model.Appointment{}, fmt.Errorf("%w: submit while %s", ErrInvalidState, state)
	case w.selected == nil:
		w.mu.Unlock()
		return model.Appointment{}, model.Validationf("no slot selected")
	}
	if _, busy := w.cancelling[w.apptID]; busy && w.mode == ModeReschedule {
		w.mu.Unlock()
		return model.Appointment{}, ErrInFlight
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
	w.state = StateSubmitting
	mode, apptID, prevDate := w.mode, w.apptID, w.prevDate
	req := BookRequest{
		ClinicID:  w.target.ClinicID,
		DoctorID:  w.target.DoctorID,
		PatientID: w.target.PatientID,
		Phone:     w.target.Phone,
		Date:      w.date,
		Slot:      *w.selected,
	}
	w.mu.Unlock()

	sctx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	var (
		appt model.Appointment
		err  error
	)
	if mode == ModeReschedule {
		appt, err = w.mutator.Reschedule(sctx, RescheduleRequest{AppointmentID: apptID, BookRequest: req, PreviousDate: prevDate})
	} else {
		appt, err = w.mutator.Book(sctx, req)
	}

	if err == nil {
		if mode == ModeReschedule {
			if appt.Status == "" || appt.Status == model.StatusScheduled {
				appt.Status = model.StatusRescheduled
			}
			w.agenda.Replace(appt)
		} else {
			w.agenda.Add(appt)
		}
		w.mu.Lock()
		w.reset()
		w.mu.Unlock()
		return appt, nil
	}

	if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrSlotInPast) {
		w.mu.Lock()
		fctx, gen := w.beginFetch(ctx, req.Date)
		q := availability.Query{ClinicID: req.ClinicID, DoctorID: req.DoctorID, Date: req.Date}
		w.mu.Unlock()
		if _, ferr := w.fetch(fctx, gen, q); ferr != nil && !errors.Is(ferr, ErrStale) {
			w.logger.Warn("slot refetch after rejected submit failed", "date", req.Date.String(), "err", ferr)
		}
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
		return model.Appointment{}, err
	}

	// Keep the selection so the same slot can be resubmitted.
	w.mu.Lock()
	w.state = StatePickingSlot
	w.lastErr = err
	w.mu.Unlock()
	return model.Appointment{}, err
}

// Close abandons the session. It is refused while a submit is running.
func (w *Workflow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateSubmitting {
		return fmt.Errorf("%w: close while submitting", ErrInvalidState)
	}
	w.reset()
	return nil
}

// CancelAppointment cancels an agenda appointment. It does not touch the
// booking session unless that session is rescheduling the same appointment,
// in which case it is refused.
func (w *Workflow) CancelAppointment(ctx context.Context, id string) error {
	appt, ok := w.agenda.Get(id)
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, model.ErrNotFound)
	}
	if err := appt.Status.CanTransition(model.StatusCancelled); err != nil {
		return err
	}

	w.mu.Lock()
	if w.state == StateSubmitting && w.mode == ModeReschedule && w.apptID == id {
		w.mu.Unlock()
		return ErrInFlight
	}
	if _, busy := w.cancelling[id]; busy {
		w.mu.Unlock()
		return ErrInFlight
	}
	w.cancelling[id] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.cancelling, id)
		w.mu.Unlock()
	}()

	cctx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	date := appt.Date
	err := w.mutator.Cancel(cctx, CancelRequest{
		AppointmentID: appt.ID,
		ClinicID:      appt.ClinicID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Phone:         appt.Phone,
		Date:          &date,
	})
	if err != nil {
		return err
	}
	w.agenda.MarkCancelled(id)
	return nil
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		State:         w.state,
		Mode:          w.mode,
		Target:        w.target,
		AppointmentID: w.apptID,
		Date:          w.date,
		Result:        w.result,
		Err:           w.lastErr,
	}
	s.Result.Slots = slices.Clone(w.result.Slots)
	if w.selected != nil {
		sel := *w.selected
		s.Selected = &sel
	}
	return s
}

// reset must be called with mu held.
func (w *Workflow) reset() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
	w.state = StateIdle
	w.mode = ModeBook
	w.target = Target{}
	w.apptID = ""
	w.prevDate = nil
	w.date = clock.Date{}
	w.result = availability.Result{}
	w.selected = nil
	w.lastErr = nil
}
