package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

func bookBody() map[string]string {
	return map[string]string{
		"clinic_id":  "c1",
		"doctor_id":  "d1",
		"patient_id": "p1",
		"date":       tomorrow.String(),
		"time":       "2:30 PM",
		"phone":      "+15550100",
	}
}

func TestBookAcceptsDisplayTime(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/appointments/book", token(t, auth.RoleAdmin, "", ""), bookBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[appointmentView](t, resp)
	assert.Equal(t, "appt-1", got.ID)
	assert.Equal(t, "14:30", got.Time24)
	require.Len(t, f.bookings.books, 1)
	assert.Equal(t, clock.MustTimeOfDay(14, 30), f.bookings.books[0].Slot)
}

func TestBookRejectsMalformedTime(t *testing.T) {
	f := newFixture(t)
	body := bookBody()
	body["time"] = "25:00"
	resp := f.do(t, http.MethodPost, "/api/v1/appointments/book", token(t, auth.RoleAdmin, "", ""), body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.bookings.books)
}

func TestBookConflict(t *testing.T) {
	f := newFixture(t)
	f.bookings.err = booking.ErrSlotTaken
	resp := f.do(t, http.MethodPost, "/api/v1/appointments/book", token(t, auth.RoleAdmin, "", ""), bookBody())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBookIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	tok := token(t, auth.RoleAdmin, "", "")

	first := f.do(t, http.MethodPost, "/api/v1/appointments/book", tok, bookBody(), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	second := f.do(t, http.MethodPost, "/api/v1/appointments/book", tok, bookBody(), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, "appt-1", decode[appointmentView](t, second).ID)
	assert.Len(t, f.bookings.books, 1)

	body := bookBody()
	body["time"] = "3:00 PM"
	reused := f.do(t, http.MethodPost, "/api/v1/appointments/book", tok, body, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, reused.StatusCode)
}

func TestFailedBookIsNotReplayed(t *testing.T) {
	f := newFixture(t)
	tok := token(t, auth.RoleAdmin, "", "")
	f.bookings.err = booking.ErrSlotTaken
	resp := f.do(t, http.MethodPost, "/api/v1/appointments/book", tok, bookBody(), "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	f.bookings.err = nil
	resp = f.do(t, http.MethodPost, "/api/v1/appointments/book", tok, bookBody(), "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, f.bookings.books, 2)
}

func TestRescheduleAndCancel(t *testing.T) {
	f := newFixture(t)
	tok := token(t, auth.RoleDoctor, "d1", "c1")

	body := map[string]string{
		"appointment_id": "appt-9",
		"previous_date":  today.String(),
		"patient_id":     "p1",
		"date":           tomorrow.String(),
		"time":           "09:00",
		"phone":          "+15550100",
	}
	resp := f.do(t, http.MethodPost, "/api/v1/appointments/reschedule", tok, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[appointmentView](t, resp)
	assert.Equal(t, "appt-9", got.ID)
	assert.Equal(t, "rescheduled", got.Status)

	resp = f.do(t, http.MethodPost, "/api/v1/appointments/cancel", tok, map[string]string{
		"appointment_id": "appt-9",
		"patient_id":     "p1",
		"date":           tomorrow.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", decode[cancelResponse](t, resp).Status)
	require.Len(t, f.bookings.cancels, 1)
	assert.Equal(t, "d1", f.bookings.cancels[0].DoctorID)
	assert.Equal(t, "c1", f.bookings.cancels[0].ClinicID)
	assert.Equal(t, tomorrow, *f.bookings.cancels[0].Date)

	resp = f.do(t, http.MethodPost, "/api/v1/appointments/cancel", tok, map[string]string{"appointment_id": "x", "doctor_id": "d2", "patient_id": "p1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
