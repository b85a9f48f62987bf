package clinicapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// listKeys are the object keys the clinic API has been seen to wrap lists in.
var listKeys = []string{"data", "logs", "items", "results", "appointments", "exceptions", "working_hours", "availability"}

// decodeList unwraps a list response: a bare array, an object holding the
// array under one of listKeys, or the same object nested under "data". A
// null list or a bare status envelope is empty; any other lone object is
// treated as a one-element list.
func decodeList[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("unexpected list payload %.20q", raw)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for _, key := range listKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || bytes.Equal(inner, []byte("null")) {
			return nil, nil
		}
		if inner[0] == '[' || inner[0] == '{' {
			return decodeList[T](inner)
		}
	}
	if !hasItemFields(obj) {
		return nil, nil
	}

	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// envelopeKeys carry response status rather than item data.
var envelopeKeys = map[string]bool{
	"success": true, "message": true, "status": true, "error": true,
	"count": true, "total": true, "page": true, "meta": true,
}

func hasItemFields(obj map[string]json.RawMessage) bool {
	for k := range obj {
		if !envelopeKeys[k] {
			return true
		}
	}
	return false
}

// decodeOne unwraps {data: {...}} when present.
func decodeOne[T any](raw []byte) (T, error) {
	var out T
	raw = bytes.TrimSpace(raw)
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &env); err == nil {
			if inner := bytes.TrimSpace(env.Data); len(inner) > 0 && inner[0] == '{' {
				raw = inner
			}
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*f = flexID(n.String())
	return nil
}

func firstID(ids ...flexID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

type wireException struct {
	ID          flexID  `json:"id"`
	DoctorID    flexID  `json:"doctor_id"`
	Date        string  `json:"exception_date"`
	EndDate     *string `json:"end_date"`
	AllDay      bool    `json:"is_all_day"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Reason      *string `json:"reason"`
	IsUSHoliday bool    `json:"is_us_holiday"`
}

// exceptionDate tolerates a timestamp where a plain date is expected.
func exceptionDate(s string) (clock.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(clock.DateLayout) {
		s = s[:len(clock.DateLayout)]
	}
	return clock.ParseDate(s)
}

func optionalTime(s *string) (*clock.TimeOfDay, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := clock.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (w wireException) toException() (exceptions.Exception, error) {
	d, err := exceptionDate(w.Date)
	if err != nil {
		return exceptions.Exception{}, err
	}
	e := exceptions.Exception{
		ID:        string(w.ID),
		DoctorID:  string(w.DoctorID),
		Date:      d,
		AllDay:    w.AllDay,
		USHoliday: w.IsUSHoliday,
	}
	if w.EndDate != nil && strings.TrimSpace(*w.EndDate) != "" {
		end, err := exceptionDate(*w.EndDate)
		if err != nil {
			return exceptions.Exception{}, err
		}
		e.EndDate = &end
	}
	if w.Reason != nil {
		e.Reason = *w.Reason
	}
	if !e.AllDay {
		if e.Start, err = optionalTime(w.StartTime); err != nil {
			return exceptions.Exception{}, err
		}
		if e.End, err = optionalTime(w.EndTime); err != nil {
			return exceptions.Exception{}, err
		}
	}
	return e, nil
}

// exceptionBody is the request form: times go out in 24-hour form.
type exceptionBody struct {
	Date        string  `json:"exception_date"`
	EndDate     *string `json:"end_date,omitempty"`
	AllDay      bool    `json:"is_all_day"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	IsUSHoliday bool    `json:"is_us_holiday"`
}

func newExceptionBody(e exceptions.Exception) exceptionBody {
	b := exceptionBody{Date: e.Date.String(), AllDay: e.AllDay, Reason: e.Reason, IsUSHoliday: e.USHoliday}
	if e.EndDate != nil {
		s := e.EndDate.String()
		b.EndDate = &s
	}
	if !e.AllDay && e.Start != nil && e.End != nil {
		start, end := e.Start.Clock24(), e.End.Clock24()
		b.StartTime, b.EndTime = &start, &end
	}
	return b
}

type wireDay struct {
	Date        string `json:"date"`
	IsAvailable *bool  `json:"is_available"`
	TimeSlots   struct {
		Morning   []string `json:"morning"`
		Afternoon []string `json:"afternoon"`
	} `json:"time_slots"`
}

func (w wireDay) toDay() (availability.Day, error) {
	d, err := exceptionDate(w.Date)
	if err != nil {
		return availability.Day{}, err
	}
	day := availability.Day{Date: d}
	if day.Morning, err = parseSlots(w.TimeSlots.Morning); err != nil {
		return availability.Day{}, err
	}
	if day.Afternoon, err = parseSlots(w.TimeSlots.Afternoon); err != nil {
		return availability.Day{}, err
	}
	if w.IsAvailable != nil {
		day.Available = *w.IsAvailable
	} else {
		day.Available = len(day.Morning)+len(day.Afternoon) > 0
	}
	return day, nil
}

func parseSlots(ss []string) ([]clock.TimeOfDay, error) {
	out := make([]clock.TimeOfDay, 0, len(ss))
	for _, s := range ss {
		t, err := clock.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type wireAppointment struct {
	ID              flexID `json:"id"`
	AppointmentID   flexID `json:"appointment_id"`
	DoctorID        flexID `json:"doctor_id"`
	ClinicID        flexID `json:"clinic_id"`
	PatientID       flexID `json:"patient_id"`
	AppointmentTime string `json:"appointment_time"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Status          string `json:"status"`
	Phone           string `json:"phone"`
	PatientName     string `json:"patient_name"`
	DoctorName      string `json:"doctor_name"`
}

// Timestamps without an offset are clinic wall-clock times.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

func parseAppointmentTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised appointment_time %q", s)
}

func (w wireAppointment) toAppointment(loc *time.Location) (model.Appointment, error) {
	a := model.Appointment{
		ID:          firstID(w.ID, w.AppointmentID),
		DoctorID:    string(w.DoctorID),
		ClinicID:    string(w.ClinicID),
		PatientID:   string(w.PatientID),
		Status:      model.ParseStatus(w.Status),
		Phone:       w.Phone,
		PatientName: w.PatientName,
		DoctorName:  w.DoctorName,
	}
	switch {
	case w.AppointmentTime != "":
		t, err := parseAppointmentTime(w.AppointmentTime, loc)
		if err != nil {
			return model.Appointment{}, err
		}
		a.Date = clock.DateOf(t, loc)
		a.Time = clock.TimeOfDay(t.Hour()*60 + t.Minute())
	case w.Date != "":
		d, err := exceptionDate(w.Date)
		if err != nil {
			return model.Appointment{}, err
		}
		a.Date = d
		if w.Time != "" {
			if a.Time, err = clock.Parse(w.Time); err != nil {
				return model.Appointment{}, err
			}
		}
	}
	return a, nil
}

// errorBody pulls a message out of an error response for logs and errors.
func errorBody(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.Message, body.Error, body.Detail} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "empty body"
	}
	return strconv.Quote(msg)
}
