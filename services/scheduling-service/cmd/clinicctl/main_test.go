package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// fakeAPI serves the subset of the clinic API the commands call.
type fakeAPI struct {
	mu       sync.Mutex
	booked   map[string]any
	putHours []byte
	created  []map[string]any
	taken    bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.URL.Path == "/dashboard/clinics/c1/working-hours" && r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `[]`)
	case r.URL.Path == "/dashboard/clinics/c1/working-hours" && r.Method == http.MethodPut:
		f.putHours, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"success":true}`)
	case r.URL.Path == "/dashboard/doctors/d1/availability-exceptions" && r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"data":[{"id":7,"doctor_id":"d1","exception_date":"2030-07-04","is_all_day":true,"reason":"Independence Day","is_us_holiday":true}]}`)
	case r.URL.Path == "/dashboard/doctors/d1/availability-exceptions" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body)
		body["id"] = len(f.created) + 100
		_ = json.NewEncoder(w).Encode(body)
	case r.URL.Path == "/dashboard/appointments":
		_, _ = io.WriteString(w, `[{"id":"a9","doctor_id":"d1","clinic_id":"c1","patient_id":"p2","date":"2030-06-05","time":"10:00","status":"scheduled"}]`)
	case r.URL.Path == "/appointments/availability":
		_, _ = io.WriteString(w, `[{"date":"2030-06-04","is_available":true,"time_slots":{"morning":["9:00 AM","9:30 AM"],"afternoon":["2:00 PM"]}}]`)
	case r.URL.Path == "/appointments/book":
		if f.taken {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"message":"slot already booked"}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.booked)
		_, _ = io.WriteString(w, `{"success":true,"appointment":{"id":"a1","doctor_id":"d1","clinic_id":"c1","patient_id":"p1","date":"2030-06-04","time":"09:30","status":"scheduled"}}`)
	default:
		http.NotFound(w, r)
	}
}

func run(t *testing.T, api *fakeAPI, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	now := func() time.Time { return time.Date(2030, 6, 3, 12, 0, 0, 0, time.UTC) }
	cmd := newRootCmd(&out, now)
	cmd.SetArgs(append([]string{"--api-url", srv.URL, "--token", "tok", "--timezone", "UTC", "--clinic", "c1", "--doctor", "d1"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSlotsCommand(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "slots", "--date", "2030-06-04")
	require.NoError(t, err)
	assert.Contains(t, out, "9:00 AM")
	assert.Contains(t, out, "2:00 PM")
}

func TestSlotsOfflineUsesWorkingHours(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "--offline", "slots", "--date", "2030-06-04")
	require.NoError(t, err)
	assert.Contains(t, out, "9:00 AM")
	assert.Contains(t, out, "4:30 PM")
	assert.NotContains(t, out, "5:00 PM")
}

func TestSlotsOnClosedDay(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "slots", "--date", "2030-06-08")
	require.NoError(t, err)
	assert.Contains(t, out, "the clinic is closed that day")
}

func TestBookSendsTwentyFourHourTime(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "book", "--patient", "p1", "--phone", "555", "--date", "2030-06-04", "--time", "9:30 AM")
	require.NoError(t, err)
	assert.Contains(t, out, "Booked a1 on 2030-06-04 at 9:30 AM")
	assert.Equal(t, "09:30", api.booked["time"])
}

func TestBookWithoutTimeListsSlots(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "book", "--patient", "p1", "--phone", "555", "--date", "2030-06-04")
	require.Error(t, err)
	assert.Contains(t, out, "9:30 AM")
}

func TestBookTakenSlotShowsRefreshedSlots(t *testing.T) {
	out, err := run(t, &fakeAPI{taken: true}, "book", "--patient", "p1", "--phone", "555", "--date", "2030-06-04", "--time", "09:00")
	require.Error(t, err)
	assert.Contains(t, out, "no longer available")
}

func TestAppointmentsCommand(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "appointments")
	require.NoError(t, err)
	assert.Contains(t, out, "Upcoming")
	assert.Contains(t, out, "a9")
	assert.Contains(t, out, "10:00 AM")
}

func TestCalendarCommand(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "calendar", "--year", "2030", "--month", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "June 2030")
	assert.Contains(t, out, "[3]")
	assert.Contains(t, out, "5(1)")

	_, err = run(t, &fakeAPI{}, "calendar", "--month", "13")
	require.Error(t, err)
}

func TestHoursToggle(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "hours", "toggle", "saturday")
	require.NoError(t, err)
	assert.Contains(t, out, "Saturday")

	var body struct {
		Rows []struct {
			Day      string `json:"day"`
			IsClosed bool   `json:"is_closed"`
		} `json:"working_hours"`
	}
	require.NoError(t, json.Unmarshal(api.putHours, &body))
	require.Len(t, body.Rows, 7)
	assert.Equal(t, "Saturday", body.Rows[5].Day)
	assert.False(t, body.Rows[5].IsClosed)
}

func TestHoursSetRejectsInvertedDay(t *testing.T) {
	api := &fakeAPI{}
	_, err := run(t, api, "hours", "set", "monday", "5:00 PM", "9:00 AM")
	require.Error(t, err)
	assert.Nil(t, api.putHours)
}

func TestExceptionsListAndAdd(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "exceptions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2030-07-04")
	assert.Contains(t, out, "(holiday)")

	out, err = run(t, api, "exceptions", "add", "--date", "2030-06-10", "--start", "1:00 PM", "--end", "15:00", "--reason", "training")
	require.NoError(t, err)
	assert.Contains(t, out, "Created exception 101")
	require.Len(t, api.created, 1)

	_, err = run(t, api, "exceptions", "add", "--date", "2030-06-10")
	require.Error(t, err)
	assert.Len(t, api.created, 1)
}

func TestHolidaysSyncLocalSkipsExisting(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "holidays", "sync", "--local", "--year", "2030")
	require.NoError(t, err)
	// July 4th is already blocked.
	assert.Contains(t, out, "Created 10 holiday exceptions for 2030")
	assert.Len(t, api.created, 10)
}

func TestHolidaysList(t *testing.T) {
	out, err := run(t, &fakeAPI{}, "holidays", "list", "--year", "2027")
	require.NoError(t, err)
	assert.Contains(t, out, "Independence Day (observed)")
}

func TestDoctorRequired(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out, nil)
	t.Setenv("HOME", t.TempDir())
	cmd.SetArgs([]string{"slots", "--api-url", "http://127.0.0.1:1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--doctor is required")
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	t.Cleanup(srv.Close)
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd(&out, nil)
	cmd.SetArgs([]string{"--api-url", srv.URL, "--clinic", "c1", "hours", "get"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}
