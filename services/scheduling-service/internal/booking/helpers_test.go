package booking

import (
	"context"
	"sync"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

var (
	today    = clock.NewDate(2030, time.June, 3)
	tomorrow = today.AddDays(1)
	nineAM   = clock.MustTimeOfDay(9, 0)
	tenAM    = clock.MustTimeOfDay(10, 0)
	twoPM    = clock.MustTimeOfDay(14, 0)
)

func frozenZone() *clock.Zone {
	return clock.NewZoneWithNow(time.UTC, func() time.Time { return today.At(clock.MustTimeOfDay(8, 0), time.UTC) })
}

type fakeAPI struct {
	mu          sync.Mutex
	books       []BookCall
	reschedules []RescheduleCall
	cancels     []CancelCall
	err         error
	// entered receives once per call that reaches the API.
	entered chan struct{}
	// block, when set, holds every call until it is closed.
	block chan struct{}
}

func (f *fakeAPI) wait(ctx context.Context) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) Book(ctx context.Context, call BookCall) (model.Appointment, error) {
	if err := f.wait(ctx); err != nil {
		return model.Appointment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books = append(f.books, call)
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{ID: "new-1"}, nil
}

func (f *fakeAPI) Reschedule(ctx context.Context, call RescheduleCall) (model.Appointment, error) {
	if err := f.wait(ctx); err != nil {
		return model.Appointment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reschedules = append(f.reschedules, call)
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{}, nil
}

func (f *fakeAPI) Cancel(ctx context.Context, call CancelCall) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, call)
	return f.err
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) AppointmentChanged(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) kinds() []ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeKind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

// slotsFunc adapts a function to SlotComputer.
type slotsFunc func(context.Context, availability.Query) (availability.Result, error)

func (f slotsFunc) Slots(ctx context.Context, q availability.Query) (availability.Result, error) {
	return f(ctx, q)
}

func openDay(slots ...clock.TimeOfDay) slotsFunc {
	return func(_ context.Context, q availability.Query) (availability.Result, error) {
		return availability.Result{Date: q.Date, Slots: slots}, nil
	}
}

func bookRequest() BookRequest {
	return BookRequest{ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1", Date: tomorrow, Slot: nineAM, Phone: "555-0100"}
}
