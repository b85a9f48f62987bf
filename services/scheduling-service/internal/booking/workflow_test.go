package booking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

var target = Target{ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Phone: "555-0100"}

func newWorkflow(slots SlotComputer, api *fakeAPI, agenda *Agenda, opts ...WorkflowOption) *Workflow {
	zone := frozenZone()
	return NewWorkflow(slots, NewService(api, nil, zone), agenda, zone, opts...)
}

func TestWorkflowBookHappyPath(t *testing.T) {
	api := &fakeAPI{}
	w := newWorkflow(openDay(nineAM, twoPM), api, nil)
	ctx := context.Background()

	require.NoError(t, w.OpenBook(target))
	assert.Equal(t, StatePickingDate, w.Snapshot().State)

	res, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM", "2:00 PM"}, res.Display())
	assert.Equal(t, StatePickingSlot, w.Snapshot().State)

	require.NoError(t, w.SelectSlot(twoPM))
	appt, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-1", appt.ID)
	assert.Equal(t, "14:00", api.books[0].Time)

	snap := w.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Selected)
	assert.Equal(t, []string{"new-1"}, ids(w.Agenda().Upcoming(today)))
}

func TestWorkflowGuardsTransitions(t *testing.T) {
	w := newWorkflow(openDay(nineAM), &fakeAPI{}, nil)
	ctx := context.Background()

	_, err := w.PickDate(ctx, tomorrow)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, w.SelectSlot(nineAM), ErrInvalidState)
	_, err = w.Submit(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, w.OpenBook(target))
	assert.ErrorIs(t, w.OpenBook(target), ErrInvalidState)

	_, err = w.PickDate(ctx, today.AddDays(-1))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	_, err = w.Submit(ctx)
	assert.ErrorIs(t, err, model.ErrValidation, "submit without a slot")
	assert.ErrorIs(t, w.SelectSlot(tenAM), model.ErrValidation, "slot not offered")

	require.NoError(t, w.Close())
	assert.Equal(t, StateIdle, w.Snapshot().State)
}

func TestWorkflowPickDateClearsSelection(t *testing.T) {
	w := newWorkflow(openDay(nineAM, tenAM), &fakeAPI{}, nil)
	ctx := context.Background()
	require.NoError(t, w.OpenBook(target))

	_, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	require.NoError(t, w.SelectSlot(tenAM))
	require.NotNil(t, w.Snapshot().Selected)

	_, err = w.PickDate(ctx, tomorrow.AddDays(1))
	require.NoError(t, err)
	assert.Nil(t, w.Snapshot().Selected)
}

func TestWorkflowDiscardsStaleFetch(t *testing.T) {
	dateA, dateB := tomorrow, tomorrow.AddDays(1)
	enteredA := make(chan struct{})
	releaseA := make(chan struct{})
	slots := slotsFunc(func(_ context.Context, q availability.Query) (availability.Result, error) {
		if q.Date.Equal(dateA) {
			close(enteredA)
			<-releaseA
			// Answer late even though the fetch was cancelled.
			return availability.Result{Date: dateA, Slots: []clock.TimeOfDay{nineAM}}, nil
		}
		return availability.Result{Date: q.Date, Slots: []clock.TimeOfDay{twoPM}}, nil
	})
	w := newWorkflow(slots, &fakeAPI{}, nil)
	ctx := context.Background()
	require.NoError(t, w.OpenBook(target))

	errA := make(chan error, 1)
	go func() {
		_, err := w.PickDate(ctx, dateA)
		errA <- err
	}()
	<-enteredA

	resB, err := w.PickDate(ctx, dateB)
	require.NoError(t, err)
	assert.Equal(t, []clock.TimeOfDay{twoPM}, resB.Slots)

	close(releaseA)
	assert.ErrorIs(t, <-errA, ErrStale)

	snap := w.Snapshot()
	assert.Equal(t, dateB, snap.Date)
	assert.Equal(t, []clock.TimeOfDay{twoPM}, snap.Result.Slots)
	assert.NoError(t, snap.Err)
}

func TestWorkflowConflictRefetches(t *testing.T) {
	var calls atomic.Int32
	slots := slotsFunc(func(_ context.Context, q availability.Query) (availability.Result, error) {
		if calls.Add(1) == 1 {
			return availability.Result{Date: q.Date, Slots: []clock.TimeOfDay{nineAM, tenAM}}, nil
		}
		return availability.Result{Date: q.Date, Slots: []clock.TimeOfDay{tenAM}}, nil
	})
	api := &fakeAPI{err: fmt.Errorf("book: %w", model.ErrConflict)}
	w := newWorkflow(slots, api, nil)
	ctx := context.Background()

	require.NoError(t, w.OpenBook(target))
	_, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	require.NoError(t, w.SelectSlot(nineAM))

	_, err = w.Submit(ctx)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Len(t, api.books, 1, "no automatic retry")

	snap := w.Snapshot()
	assert.Equal(t, StatePickingSlot, snap.State)
	assert.Nil(t, snap.Selected)
	assert.Equal(t, []clock.TimeOfDay{tenAM}, snap.Result.Slots)
	assert.ErrorIs(t, snap.Err, ErrSlotTaken)
	assert.EqualValues(t, 2, calls.Load())
	assert.Empty(t, w.Agenda().All())
}

func TestWorkflowTransportErrorKeepsSelection(t *testing.T) {
	api := &fakeAPI{err: &model.TransportError{Op: "book", StatusCode: 502, Err: errors.New("bad gateway")}}
	w := newWorkflow(openDay(nineAM), api, nil)
	ctx := context.Background()

	require.NoError(t, w.OpenBook(target))
	_, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	require.NoError(t, w.SelectSlot(nineAM))

	_, err = w.Submit(ctx)
	assert.True(t, model.IsRetryable(err))
	snap := w.Snapshot()
	assert.Equal(t, StatePickingSlot, snap.State)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, nineAM, *snap.Selected)
}

func TestWorkflowRefusesWhileSubmitting(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := newWorkflow(openDay(nineAM), api, nil)
	ctx := context.Background()

	require.NoError(t, w.OpenBook(target))
	_, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	require.NoError(t, w.SelectSlot(nineAM))

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx)
		done <- err
	}()
	<-api.entered

	_, err = w.Submit(ctx)
	assert.ErrorIs(t, err, ErrInFlight)
	_, err = w.PickDate(ctx, tomorrow.AddDays(1))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, w.Close(), ErrInvalidState)
	assert.Equal(t, StateSubmitting, w.Snapshot().State)

	close(api.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, w.Snapshot().State)
}

func TestWorkflowFetchFailureHasWayOut(t *testing.T) {
	unavailable := fmt.Errorf("%w: raw availability: %w", model.ErrUnavailable, errors.New("connection refused"))
	w := newWorkflow(slotsFunc(func(context.Context, availability.Query) (availability.Result, error) {
		return availability.Result{}, unavailable
	}), &fakeAPI{}, nil)
	ctx := context.Background()

	require.NoError(t, w.OpenBook(target))
	_, err := w.PickDate(ctx, tomorrow)
	assert.ErrorIs(t, err, model.ErrUnavailable)

	snap := w.Snapshot()
	assert.Equal(t, StatePickingSlot, snap.State)
	assert.Empty(t, snap.Result.Slots)
	assert.ErrorIs(t, snap.Err, model.ErrUnavailable)

	require.NoError(t, w.Close())
	assert.Equal(t, StateIdle, w.Snapshot().State)
}

func TestWorkflowFetchTimesOut(t *testing.T) {
	hang := slotsFunc(func(ctx context.Context, _ availability.Query) (availability.Result, error) {
		<-ctx.Done()
		return availability.Result{}, ctx.Err()
	})
	w := newWorkflow(hang, &fakeAPI{}, nil, WithStepTimeout(20*time.Millisecond))

	require.NoError(t, w.OpenBook(target))
	_, err := w.PickDate(context.Background(), tomorrow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkflowReschedule(t *testing.T) {
	original := model.Appointment{
		ID: "a1", ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Phone: "555-0100",
		Date: today.AddDays(5), Time: tenAM, Status: model.StatusScheduled,
	}
	api := &fakeAPI{}
	w := newWorkflow(openDay(nineAM), api, NewAgenda([]model.Appointment{original}))
	ctx := context.Background()

	require.NoError(t, w.OpenReschedule("a1"))
	snap := w.Snapshot()
	assert.Equal(t, ModeReschedule, snap.Mode)
	assert.Equal(t, "doc-1", snap.Target.DoctorID)

	_, err := w.PickDate(ctx, tomorrow)
	require.NoError(t, err)
	require.NoError(t, w.SelectSlot(nineAM))
	appt, err := w.Submit(ctx)
	require.NoError(t, err)

	assert.Equal(t, "a1", api.reschedules[0].AppointmentID)
	assert.Equal(t, "2030-06-04", api.reschedules[0].Date)
	assert.Equal(t, model.StatusRescheduled, appt.Status)

	got, ok := w.Agenda().Get("a1")
	require.True(t, ok)
	assert.Equal(t, tomorrow, got.Date)
	assert.Equal(t, nineAM, got.Time)
	assert.Len(t, w.Agenda().All(), 1)
}

func TestWorkflowRescheduleRejectsTerminal(t *testing.T) {
	done := model.Appointment{ID: "a1", ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Date: tomorrow, Status: model.StatusCancelled}
	w := newWorkflow(openDay(nineAM), &fakeAPI{}, NewAgenda([]model.Appointment{done}))

	assert.ErrorIs(t, w.OpenReschedule("a1"), model.ErrInvalidTransition)
	assert.ErrorIs(t, w.OpenReschedule("missing"), model.ErrNotFound)
	assert.Equal(t, StateIdle, w.Snapshot().State)
}

func TestWorkflowCancelAppointment(t *testing.T) {
	appt := model.Appointment{ID: "a1", ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Date: tomorrow, Time: nineAM, Status: model.StatusScheduled}
	api := &fakeAPI{}
	w := newWorkflow(openDay(nineAM), api, NewAgenda([]model.Appointment{appt}))
	ctx := context.Background()

	require.NoError(t, w.CancelAppointment(ctx, "a1"))
	require.Len(t, api.cancels, 1)
	assert.Equal(t, "doc-1", api.cancels[0].DoctorID)

	assert.Empty(t, w.Agenda().Upcoming(today))
	assert.Equal(t, []string{"a1"}, ids(w.Agenda().Past(today)))

	assert.ErrorIs(t, w.CancelAppointment(ctx, "a1"), model.ErrInvalidTransition)
	assert.Len(t, api.cancels, 1)
}

func TestWorkflowCancelFailureLeavesAgenda(t *testing.T) {
	appt := model.Appointment{ID: "a1", ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Date: tomorrow, Status: model.StatusScheduled}
	api := &fakeAPI{err: model.ErrUnauthorized}
	w := newWorkflow(openDay(nineAM), api, NewAgenda([]model.Appointment{appt}))

	assert.ErrorIs(t, w.CancelAppointment(context.Background(), "a1"), model.ErrUnauthorized)
	got, _ := w.Agenda().Get("a1")
	assert.Equal(t, model.StatusScheduled, got.Status)
}
