package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

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

const secret = "test-secret"

var (
	today    = clock.NewDate(2030, time.June, 3)
	tomorrow = today.AddDays(1)
)

type fakeSlots struct {
	res   availability.Result
	err   error
	query availability.Query
}

func (f *fakeSlots) Slots(_ context.Context, q availability.Query) (availability.Result, error) {
	f.query = q
	if f.err != nil {
		return availability.Result{}, f.err
	}
	res := f.res
	res.Date = q.Date
	return res, nil
}

type fakeSchedule struct {
	mu       sync.Mutex
	week     hours.Week
	setCalls int
	excs     []exceptions.Exception
	deleted  []string
	appts    []model.Appointment
	filter   model.Filter
	sync     clinicapi.SyncResult
}

func (f *fakeSchedule) WorkingHours(context.Context, string) (hours.Week, error) { return f.week, nil }

func (f *fakeSchedule) SetWorkingHours(_ context.Context, _ string, w hours.Week) error {
	f.setCalls++
	f.week = w
	return nil
}

func (f *fakeSchedule) Exceptions(context.Context, string) ([]exceptions.Exception, error) {
	return f.excs, nil
}

func (f *fakeSchedule) CreateException(_ context.Context, e exceptions.Exception) (exceptions.Exception, error) {
	e.ID = "exc-1"
	f.excs = append(f.excs, e)
	return e, nil
}

func (f *fakeSchedule) UpdateException(_ context.Context, e exceptions.Exception) (exceptions.Exception, error) {
	return e, nil
}

func (f *fakeSchedule) DeleteException(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSchedule) SyncHolidays(context.Context, string, int) (clinicapi.SyncResult, error) {
	return f.sync, nil
}

func (f *fakeSchedule) Appointments(_ context.Context, filter model.Filter) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	var out []model.Appointment
	for _, a := range f.appts {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeBookings struct {
	mu      sync.Mutex
	books   []booking.BookRequest
	cancels []booking.CancelRequest
	err     error
}

func (f *fakeBookings) Book(_ context.Context, r booking.BookRequest) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books = append(f.books, r)
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{ID: "appt-1", ClinicID: r.ClinicID, DoctorID: r.DoctorID, PatientID: r.PatientID, Date: r.Date, Time: r.Slot, Status: model.StatusScheduled}, nil
}

func (f *fakeBookings) Reschedule(_ context.Context, r booking.RescheduleRequest) (model.Appointment, error) {
	return model.Appointment{ID: r.AppointmentID, DoctorID: r.DoctorID, Date: r.Date, Time: r.Slot, Status: model.StatusRescheduled}, f.err
}

func (f *fakeBookings) Cancel(_ context.Context, r booking.CancelRequest) error {
	f.cancels = append(f.cancels, r)
	return f.err
}

// memIdempotency mirrors storage.IdempotencyRepository.Run without Postgres.
type memIdempotency struct {
	mu   sync.Mutex
	done map[string]storage.Outcome
	hash map[string]string
}

func (m *memIdempotency) Run(ctx context.Context, clinicID, key, hash string, fn func(context.Context) (storage.Outcome, error)) (storage.Outcome, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := clinicID + "/" + key
	if out, ok := m.done[k]; ok {
		if m.hash[k] != hash {
			return storage.Outcome{}, false, storage.ErrKeyReused
		}
		return out, true, nil
	}
	out, err := fn(ctx)
	if err != nil {
		return storage.Outcome{}, false, err
	}
	m.done[k] = out
	m.hash[k] = hash
	return out, false, nil
}

type invalidation struct {
	clinicID, doctorID string
	dates              []clock.Date
}

type fakeCache struct{ calls []invalidation }

func (f *fakeCache) Invalidate(_ context.Context, clinicID, doctorID string, dates ...clock.Date) error {
	f.calls = append(f.calls, invalidation{clinicID, doctorID, dates})
	return nil
}

type fakeNotifier struct{ causes []string }

func (f *fakeNotifier) ScheduleChanged(_ context.Context, _, _, cause string, _ ...clock.Date) error {
	f.causes = append(f.causes, cause)
	return nil
}

type fixture struct {
	slots    *fakeSlots
	schedule *fakeSchedule
	bookings *fakeBookings
	idem     *memIdempotency
	cache    *fakeCache
	notifier *fakeNotifier
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		slots:    &fakeSlots{res: availability.Result{Slots: []clock.TimeOfDay{clock.MustTimeOfDay(9, 0), clock.MustTimeOfDay(14, 0)}}},
		schedule: &fakeSchedule{week: hours.DefaultWeek()},
		bookings: &fakeBookings{},
		idem:     &memIdempotency{done: map[string]storage.Outcome{}, hash: map[string]string{}},
		cache:    &fakeCache{},
		notifier: &fakeNotifier{},
	}
	zone := clock.NewZoneWithNow(time.UTC, func() time.Time { return time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC) })
	h := New(Deps{
		Availability: f.slots,
		Schedule:     f.schedule,
		Bookings:     f.bookings,
		Zone:         zone,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Idempotency:  f.idem,
		Cache:        f.cache,
		Notifier:     f.notifier,
	})
	mux := http.NewServeMux()
	h.Register(mux, auth.NewVerifier(secret, nil))
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func token(t *testing.T, role auth.Role, doctorID, clinicID string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             role,
		DoctorID:         doctorID,
		ClinicID:         clinicID,
	}, secret)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any, headers ...string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
