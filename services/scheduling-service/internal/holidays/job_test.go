package holidays

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
)

type memStore struct {
	mu      sync.Mutex
	byDoc   map[string][]exceptions.Exception
	failFor string
}

func (m *memStore) Exceptions(_ context.Context, doctorID string) ([]exceptions.Exception, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doctorID == m.failFor {
		return nil, errors.New("clinic api down")
	}
	return append([]exceptions.Exception(nil), m.byDoc[doctorID]...), nil
}

func (m *memStore) CreateException(_ context.Context, e exceptions.Exception) (exceptions.Exception, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDoc[e.DoctorID] = append(m.byDoc[e.DoctorID], e)
	return e, nil
}

type notes struct {
	doctors []string
	dates   int
}

func (n *notes) ScheduleChanged(_ context.Context, _, doctorID, _ string, dates ...clock.Date) error {
	n.doctors = append(n.doctors, doctorID)
	n.dates += len(dates)
	return nil
}

func newJob(store *memStore, n *notes, doctors ...string) *Job {
	zone := clock.NewZoneWithNow(time.UTC, func() time.Time { return time.Date(2030, 11, 1, 0, 0, 0, 0, time.UTC) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var notify Notifier
	if n != nil {
		notify = n
	}
	return NewJob(store, notify, zone, logger, Config{DoctorIDs: doctors})
}

func TestSyncDoctorIsIdempotent(t *testing.T) {
	store := &memStore{byDoc: map[string][]exceptions.Exception{}}
	n := &notes{}
	job := newJob(store, n, "doc-1")

	created, err := job.SyncDoctor(context.Background(), "doc-1", 2031)
	require.NoError(t, err)
	want := len(exceptions.PlanHolidaySync("doc-1", nil, 2031))
	assert.Len(t, created, want)
	for _, e := range created {
		assert.True(t, e.AllDay)
		assert.True(t, e.USHoliday)
	}
	assert.Equal(t, want, n.dates)

	again, err := job.SyncDoctor(context.Background(), "doc-1", 2031)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, n.doctors, 1, "nothing new, nothing recorded")
}

func TestSyncYearContinuesPastFailures(t *testing.T) {
	store := &memStore{byDoc: map[string][]exceptions.Exception{}, failFor: "doc-bad"}
	job := newJob(store, &notes{}, "doc-bad", "doc-2")

	results, err := job.SyncYear(context.Background(), 2031)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.NotEmpty(t, results[1].Created)
}

func TestRunRejectsBadSpec(t *testing.T) {
	job := newJob(&memStore{byDoc: map[string][]exceptions.Exception{}}, nil, "doc-1")
	job.cfg.Spec = "every day"
	assert.Error(t, job.Run(context.Background()))

	assert.NoError(t, ValidateSpec(DefaultSpec))
	assert.Error(t, ValidateSpec("every day"))
}

func TestRunOnStartSyncsCurrentYear(t *testing.T) {
	store := &memStore{byDoc: map[string][]exceptions.Exception{}}
	job := newJob(store, nil, "doc-1")
	job.cfg.RunOnStart = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, job.Run(ctx))

	got, _ := store.Exceptions(context.Background(), "doc-1")
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.Equal(t, 2030, e.Date.Year)
	}
}
