package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

func TestSlotsRendersBothClockForms(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/slots?clinic_id=c1&doctor_id=d1&date="+tomorrow.String(), token(t, auth.RoleAdmin, "", ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[slotsResponse](t, resp)
	assert.Equal(t, []string{"9:00 AM", "2:00 PM"}, got.Slots)
	assert.Equal(t, []string{"09:00", "14:00"}, got.Slots24)
	assert.False(t, got.Closed)
	assert.Equal(t, "d1", f.slots.query.DoctorID)
	assert.Equal(t, "c1", f.slots.query.ClinicID)
}

func TestSlotsRequiresSession(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/slots?clinic_id=c1&doctor_id=d1&date="+tomorrow.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDoctorConfinedToOwnSchedule(t *testing.T) {
	f := newFixture(t)
	tok := token(t, auth.RoleDoctor, "d1", "c1")

	resp := f.do(t, http.MethodGet, "/api/v1/slots?doctor_id=d2&date="+tomorrow.String(), tok, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/slots?date="+tomorrow.String(), tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "d1", f.slots.query.DoctorID)
	assert.Equal(t, "c1", f.slots.query.ClinicID, "clinic comes from the token")
}

func TestSlotsUnavailableIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.slots.err = fmt.Errorf("%w: raw availability: boom", model.ErrUnavailable)

	resp := f.do(t, http.MethodGet, "/api/v1/slots?clinic_id=c1&doctor_id=d1&date="+tomorrow.String(), token(t, auth.RoleAdmin, "", ""), nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.True(t, body.Retryable)
	assert.NotContains(t, body.Error, "boom")
}

func TestSlotsRejectsBadDate(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/slots?clinic_id=c1&doctor_id=d1&date=06/04/2030", token(t, auth.RoleAdmin, "", ""), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/slots", token(t, auth.RoleAdmin, "", ""), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCalendarGrid(t *testing.T) {
	f := newFixture(t)
	f.schedule.appts = []model.Appointment{
		{ID: "a1", DoctorID: "d1", Date: clock.NewDate(2030, 6, 10), Time: clock.MustTimeOfDay(10, 0), Status: model.StatusScheduled},
		{ID: "a2", DoctorID: "d1", Date: clock.NewDate(2030, 6, 10), Time: clock.MustTimeOfDay(9, 0), Status: model.StatusCompleted},
		{ID: "a3", DoctorID: "d2", Date: clock.NewDate(2030, 6, 10), Time: clock.MustTimeOfDay(9, 0), Status: model.StatusScheduled},
	}
	resp := f.do(t, http.MethodGet, "/api/v1/calendar?doctor_id=d1&year=2030&month=6", token(t, auth.RoleAdmin, "", ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[calendarResponse](t, resp)
	require.Len(t, got.Cells, 42)
	assert.Equal(t, "June 2030", got.Title)
	// June 1st 2030 is a Saturday, so six leading May cells.
	assert.False(t, got.Cells[5].InMonth)
	assert.Equal(t, 1, got.Cells[6].Day)

	cell := got.Cells[6+9]
	assert.Equal(t, "2030-06-10", cell.Date)
	assert.Equal(t, 2, cell.Count)
	assert.Equal(t, "a2", cell.Appointments[0].ID, "sorted by time")

	todayCell := got.Cells[6+2]
	assert.True(t, todayCell.Today)
	assert.True(t, todayCell.Selectable)
	assert.False(t, got.Cells[6].Selectable, "June 1st is past")

	resp = f.do(t, http.MethodGet, "/api/v1/calendar?doctor_id=d1&year=2030&month=13", token(t, auth.RoleAdmin, "", ""), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppointmentsPartition(t *testing.T) {
	f := newFixture(t)
	f.schedule.appts = []model.Appointment{
		{ID: "later", DoctorID: "d1", Date: today.AddDays(5), Time: clock.MustTimeOfDay(9, 0), Status: model.StatusScheduled},
		{ID: "soon", DoctorID: "d1", Date: today, Time: clock.MustTimeOfDay(7, 0), Status: model.StatusScheduled},
		{ID: "cancelled", DoctorID: "d1", Date: tomorrow, Time: clock.MustTimeOfDay(9, 0), Status: model.StatusCancelled},
		{ID: "old", DoctorID: "d1", Date: today.AddDays(-3), Time: clock.MustTimeOfDay(9, 0), Status: model.StatusCompleted},
	}
	resp := f.do(t, http.MethodGet, "/api/v1/appointments", token(t, auth.RoleDoctor, "d1", ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[appointmentsResponse](t, resp)
	ids := func(vs []appointmentView) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.ID
		}
		return out
	}
	assert.Equal(t, []string{"soon", "later"}, ids(got.Upcoming))
	assert.Equal(t, []string{"cancelled", "old"}, ids(got.Past))
	assert.Equal(t, "7:00 AM", got.Upcoming[0].Time)
	assert.Equal(t, "Cancelled", got.Past[0].StatusLabel)
	assert.Equal(t, "d1", f.schedule.filter.DoctorID)
}

func TestAppointmentsNeedsAFilter(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/appointments", token(t, auth.RoleAdmin, "", ""), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDoctorConfinedToOwnClinicOnReads(t *testing.T) {
	f := newFixture(t)
	tok := token(t, auth.RoleDoctor, "d1", "c1")

	for _, path := range []string{
		"/api/v1/calendar?clinic_id=c2&year=2030&month=6",
		"/api/v1/appointments?clinic_id=c2",
	} {
		resp := f.do(t, http.MethodGet, path, tok, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/appointments?clinic_id=c1", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c1", f.schedule.filter.ClinicID)
	assert.Equal(t, "d1", f.schedule.filter.DoctorID)

	resp = f.do(t, http.MethodGet, "/api/v1/appointments?clinic_id=c2", token(t, auth.RoleAdmin, "", ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c2", f.schedule.filter.ClinicID)
}
