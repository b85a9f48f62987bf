package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

var (
	_ availability.Source    = (*Client)(nil)
	_ availability.Directory = (*Client)(nil)
	_ booking.API            = (*Client)(nil)
)

// Availability returns the raw availability for one day. A day the API
// omits is reported as not available.
func (c *Client) Availability(ctx context.Context, q availability.Query) (availability.Day, error) {
	days, err := c.AvailabilityRange(ctx, q.ClinicID, q.DoctorID, q.Date, q.Date)
	if err != nil {
		return availability.Day{}, err
	}
	for _, d := range days {
		if d.Date.Equal(q.Date) {
			return d, nil
		}
	}
	return availability.Day{Date: q.Date}, nil
}

func (c *Client) AvailabilityRange(ctx context.Context, clinicID, doctorID string, from, to clock.Date) ([]availability.Day, error) {
	if doctorID == "" || from.IsZero() || to.IsZero() {
		return nil, model.Validationf("doctor id and date range are required")
	}
	if to.Before(from) {
		return nil, model.Validationf("end date %s precedes start date %s", to, from)
	}
	query := url.Values{
		"doctor_id":  {doctorID},
		"start_date": {from.String()},
		"end_date":   {to.String()},
	}
	if clinicID != "" {
		query.Set("clinic_id", clinicID)
	}
	raw, err := c.do(ctx, "get availability", http.MethodGet, "/appointments/availability", query, nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeList[wireDay](raw)
	if err != nil {
		return nil, decodeError("get availability", err)
	}
	out := make([]availability.Day, 0, len(list))
	for _, w := range list {
		d, err := w.toDay()
		if err != nil {
			return nil, decodeError("get availability", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Appointments lists appointments matching f. The date range is also
// applied locally since not every deployment honours it.
func (c *Client) Appointments(ctx context.Context, f model.Filter) ([]model.Appointment, error) {
	query := url.Values{}
	for key, v := range map[string]string{"clinic_id": f.ClinicID, "doctor_id": f.DoctorID, "patient_id": f.PatientID} {
		if v != "" {
			query.Set(key, v)
		}
	}
	if f.From != nil {
		query.Set("start_date", f.From.String())
	}
	if f.To != nil {
		query.Set("end_date", f.To.String())
	}
	raw, err := c.do(ctx, "list appointments", http.MethodGet, "/dashboard/appointments", query, nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeList[wireAppointment](raw)
	if err != nil {
		return nil, decodeError("list appointments", err)
	}
	loc := c.zone.Location()
	out := make([]model.Appointment, 0, len(list))
	for _, w := range list {
		a, err := w.toAppointment(loc)
		if err != nil {
			return nil, decodeError("list appointments", err)
		}
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *Client) Book(ctx context.Context, call booking.BookCall) (model.Appointment, error) {
	raw, err := c.do(ctx, "book appointment", http.MethodPost, "/appointments/book", nil, call)
	if err != nil {
		return model.Appointment{}, err
	}
	return c.mutationResult("book appointment", raw)
}

func (c *Client) Reschedule(ctx context.Context, call booking.RescheduleCall) (model.Appointment, error) {
	raw, err := c.do(ctx, "reschedule appointment", http.MethodPost, "/appointments/reschedule", nil, call)
	if err != nil {
		return model.Appointment{}, err
	}
	return c.mutationResult("reschedule appointment", raw)
}

func (c *Client) Cancel(ctx context.Context, call booking.CancelCall) error {
	raw, err := c.do(ctx, "cancel appointment", http.MethodPost, "/appointments/cancel", nil, call)
	if err != nil {
		return err
	}
	_, err = c.mutationResult("cancel appointment", raw)
	return err
}

type mutationEnvelope struct {
	Success     *bool           `json:"success"`
	Message     string          `json:"message"`
	Error       string          `json:"error"`
	Data        json.RawMessage `json:"data"`
	Appointment json.RawMessage `json:"appointment"`
}

// mutationResult reads the appointment echoed by a book or reschedule. Some
// deployments answer 200 with success=false; that is mapped like the
// matching status code would be.
func (c *Client) mutationResult(op string, raw []byte) (model.Appointment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return model.Appointment{}, nil
	}
	var env mutationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Appointment{}, decodeError(op, err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if slotGone(msg) {
			return model.Appointment{}, fmt.Errorf("%s: %w: %s", op, model.ErrConflict, msg)
		}
		return model.Appointment{}, fmt.Errorf("%s: %w: %s", op, model.ErrValidation, msg)
	}

	body := raw
	for _, inner := range []json.RawMessage{env.Appointment, env.Data} {
		if inner = bytes.TrimSpace(inner); len(inner) > 0 && inner[0] == '{' {
			body = inner
			break
		}
	}
	var w wireAppointment
	if err := json.Unmarshal(body, &w); err != nil {
		return model.Appointment{}, decodeError(op, err)
	}
	return w.toAppointment(c.zone.Location())
}

func slotGone(msg string) bool {
	msg = strings.ToLower(msg)
	for _, hint := range []string{"not available", "already booked", "taken", "unavailable", "conflict"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
