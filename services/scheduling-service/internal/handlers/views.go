package handlers

import (
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/calendar"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

type appointmentView struct {
	ID          string `json:"id"`
	ClinicID    string `json:"clinic_id,omitempty"`
	DoctorID    string `json:"doctor_id"`
	PatientID   string `json:"patient_id,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Time24      string `json:"time_24"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	Bucket      string `json:"bucket"`
}

func newAppointmentView(a model.Appointment) appointmentView {
	return appointmentView{
		ID:          a.ID,
		ClinicID:    a.ClinicID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		DoctorName:  a.DoctorName,
		Phone:       a.Phone,
		Date:        a.Date.String(),
		Time:        a.Time.Display(),
		Time24:      a.Time.Clock24(),
		Status:      string(a.Status),
		StatusLabel: a.Status.Label(),
		Bucket:      string(a.Status.Bucket()),
	}
}

func appointmentViews(appts []model.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, newAppointmentView(a))
	}
	return out
}

type slotsResponse struct {
	Date     string   `json:"date"`
	DoctorID string   `json:"doctor_id"`
	Slots    []string `json:"slots"`
	Slots24  []string `json:"slots_24"`
	Closed   bool     `json:"closed"`
	Reason   string   `json:"reason,omitempty"`
}

func newSlotsResponse(doctorID string, res availability.Result) slotsResponse {
	out := slotsResponse{
		Date:     res.Date.String(),
		DoctorID: doctorID,
		Slots:    res.Display(),
		Slots24:  make([]string, len(res.Slots)),
		Closed:   res.Closed(),
		Reason:   string(res.Reason),
	}
	for i, s := range res.Slots {
		out.Slots24[i] = s.Clock24()
	}
	return out
}

type cellView struct {
	Date         string            `json:"date"`
	Day          int               `json:"day"`
	InMonth      bool              `json:"in_month"`
	Today        bool              `json:"today"`
	Selectable   bool              `json:"selectable"`
	Count        int               `json:"count"`
	Appointments []appointmentView `json:"appointments,omitempty"`
}

type calendarResponse struct {
	Year  int        `json:"year"`
	Month int        `json:"month"`
	Title string     `json:"title"`
	Cells []cellView `json:"cells"`
}

func newCalendarResponse(g calendar.Grid, today clock.Date) calendarResponse {
	out := calendarResponse{Year: g.Year, Month: int(g.Month), Title: g.Title(), Cells: make([]cellView, 0, calendar.CellCount)}
	for _, c := range g.Cells {
		v := cellView{
			Date:       c.Date.String(),
			Day:        c.Day(),
			InMonth:    c.InMonth,
			Today:      c.Today,
			Selectable: c.InMonth && g.Selectable(c.Date, today),
			Count:      c.Count(),
		}
		if len(c.Appointments) > 0 {
			v.Appointments = appointmentViews(c.Appointments)
		}
		out.Cells = append(out.Cells, v)
	}
	return out
}

type exceptionView struct {
	ID        string  `json:"id"`
	DoctorID  string  `json:"doctor_id"`
	Date      string  `json:"date"`
	EndDate   *string `json:"end_date,omitempty"`
	AllDay    bool    `json:"is_all_day"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	USHoliday bool    `json:"is_us_holiday"`
}

func newExceptionView(e exceptions.Exception) exceptionView {
	v := exceptionView{ID: e.ID, DoctorID: e.DoctorID, Date: e.Date.String(), AllDay: e.AllDay, Reason: e.Reason, USHoliday: e.USHoliday}
	if e.EndDate != nil {
		s := e.EndDate.String()
		v.EndDate = &s
	}
	if e.Start != nil {
		s := e.Start.Display()
		v.StartTime = &s
	}
	if e.End != nil {
		s := e.End.Display()
		v.EndTime = &s
	}
	return v
}

// exceptionInput accepts times in either 12-hour or 24-hour form.
type exceptionInput struct {
	ID        string  `json:"id"`
	DoctorID  string  `json:"doctor_id"`
	Date      string  `json:"date"`
	EndDate   *string `json:"end_date"`
	AllDay    bool    `json:"is_all_day"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    string  `json:"reason"`
	USHoliday bool    `json:"is_us_holiday"`
}

func (in exceptionInput) toException(doctorID string) (exceptions.Exception, error) {
	d, err := parseDate(in.Date, "date")
	if err != nil {
		return exceptions.Exception{}, err
	}
	e := exceptions.Exception{ID: in.ID, DoctorID: doctorID, Date: d, AllDay: in.AllDay, Reason: in.Reason, USHoliday: in.USHoliday}
	if in.EndDate != nil && *in.EndDate != "" {
		end, err := parseDate(*in.EndDate, "end_date")
		if err != nil {
			return exceptions.Exception{}, err
		}
		e.EndDate = &end
	}
	if !in.AllDay {
		if e.Start, err = optionalClock(in.StartTime); err != nil {
			return exceptions.Exception{}, err
		}
		if e.End, err = optionalClock(in.EndTime); err != nil {
			return exceptions.Exception{}, err
		}
	}
	return e, e.Validate()
}

func optionalClock(s *string) (*clock.TimeOfDay, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := clock.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// datesOf lists every date e covers.
func datesOf(e exceptions.Exception) []clock.Date {
	var out []clock.Date
	for d := e.Date; !d.After(e.Last()); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
