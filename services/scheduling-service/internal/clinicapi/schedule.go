package clinicapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

type Clinic struct {
	ID           string
	Name         string
	Timezone     string
	WorkingHours hours.Week
}

type wireClinic struct {
	ID           flexID      `json:"id"`
	ClinicID     flexID      `json:"clinic_id"`
	Name         string      `json:"name"`
	Timezone     string      `json:"timezone"`
	WorkingHours []hours.Row `json:"working_hours"`
}

func (c *Client) Clinic(ctx context.Context, clinicID string) (Clinic, error) {
	if clinicID == "" {
		return Clinic{}, model.Validationf("clinic id is required")
	}
	raw, err := c.do(ctx, "get clinic", http.MethodGet, "/dashboard/clinics/"+url.PathEscape(clinicID), nil, nil)
	if err != nil {
		return Clinic{}, err
	}
	w, err := decodeOne[wireClinic](raw)
	if err != nil {
		return Clinic{}, decodeError("get clinic", err)
	}
	week, err := hours.FromRows(w.WorkingHours)
	if err != nil {
		return Clinic{}, decodeError("get clinic", err)
	}
	id := firstID(w.ID, w.ClinicID)
	if id == "" {
		id = clinicID
	}
	return Clinic{ID: id, Name: w.Name, Timezone: w.Timezone, WorkingHours: week}, nil
}

// WorkingHours fetches the clinic's weekly hours. Days the API leaves out
// keep their default.
func (c *Client) WorkingHours(ctx context.Context, clinicID string) (hours.Week, error) {
	if clinicID == "" {
		return hours.Week{}, model.Validationf("clinic id is required")
	}
	raw, err := c.do(ctx, "get working hours", http.MethodGet, workingHoursPath(clinicID), nil, nil)
	if err != nil {
		return hours.Week{}, err
	}
	rows, err := decodeList[hours.Row](raw)
	if err != nil {
		return hours.Week{}, decodeError("get working hours", err)
	}
	week, err := hours.FromRows(rows)
	if err != nil {
		return hours.Week{}, decodeError("get working hours", err)
	}
	return week, nil
}

func (c *Client) SetWorkingHours(ctx context.Context, clinicID string, week hours.Week) error {
	if clinicID == "" {
		return model.Validationf("clinic id is required")
	}
	if err := week.Validate(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	body := map[string]any{"working_hours": week.Rows()}
	_, err := c.do(ctx, "put working hours", http.MethodPut, workingHoursPath(clinicID), nil, body)
	return err
}

func workingHoursPath(clinicID string) string {
	return "/dashboard/clinics/" + url.PathEscape(clinicID) + "/working-hours"
}

func exceptionsPath(doctorID string) string {
	return "/dashboard/doctors/" + url.PathEscape(doctorID) + "/availability-exceptions"
}

func (c *Client) Exceptions(ctx context.Context, doctorID string) ([]exceptions.Exception, error) {
	if doctorID == "" {
		return nil, model.Validationf("doctor id is required")
	}
	raw, err := c.do(ctx, "list exceptions", http.MethodGet, exceptionsPath(doctorID), nil, nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeList[wireException](raw)
	if err != nil {
		return nil, decodeError("list exceptions", err)
	}
	out := make([]exceptions.Exception, 0, len(list))
	for _, w := range list {
		e, err := w.toException()
		if err != nil {
			return nil, decodeError("list exceptions", err)
		}
		if e.DoctorID == "" {
			e.DoctorID = doctorID
		}
		out = append(out, e)
	}
	return out, nil
}

// CreateException validates e locally, posts it and returns the stored copy.
func (c *Client) CreateException(ctx context.Context, e exceptions.Exception) (exceptions.Exception, error) {
	if e.DoctorID == "" {
		return exceptions.Exception{}, model.Validationf("doctor id is required")
	}
	if err := e.Validate(); err != nil {
		return exceptions.Exception{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	raw, err := c.do(ctx, "create exception", http.MethodPost, exceptionsPath(e.DoctorID), nil, newExceptionBody(e))
	if err != nil {
		return exceptions.Exception{}, err
	}
	return c.storedException("create exception", raw, e)
}

func (c *Client) UpdateException(ctx context.Context, e exceptions.Exception) (exceptions.Exception, error) {
	if e.DoctorID == "" || e.ID == "" {
		return exceptions.Exception{}, model.Validationf("doctor id and exception id are required")
	}
	if err := e.Validate(); err != nil {
		return exceptions.Exception{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	path := exceptionsPath(e.DoctorID) + "/" + url.PathEscape(e.ID)
	raw, err := c.do(ctx, "update exception", http.MethodPut, path, nil, newExceptionBody(e))
	if err != nil {
		return exceptions.Exception{}, err
	}
	return c.storedException("update exception", raw, e)
}

// storedException prefers the API's echo of the record and falls back to
// what was sent when the response carries no body.
func (c *Client) storedException(op string, raw []byte, sent exceptions.Exception) (exceptions.Exception, error) {
	if len(raw) == 0 {
		return sent, nil
	}
	w, err := decodeOne[wireException](raw)
	if err != nil || w.Date == "" {
		if w.ID != "" {
			sent.ID = string(w.ID)
		}
		return sent, nil
	}
	e, err := w.toException()
	if err != nil {
		return exceptions.Exception{}, decodeError(op, err)
	}
	if e.DoctorID == "" {
		e.DoctorID = sent.DoctorID
	}
	if e.ID == "" {
		e.ID = sent.ID
	}
	return e, nil
}

func (c *Client) DeleteException(ctx context.Context, doctorID, id string) error {
	if doctorID == "" || id == "" {
		return model.Validationf("doctor id and exception id are required")
	}
	_, err := c.do(ctx, "delete exception", http.MethodDelete, exceptionsPath(doctorID)+"/"+url.PathEscape(id), nil, nil)
	return err
}

// SyncResult is what the API reports after materializing holidays.
type SyncResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SyncHolidays asks the API to materialize year's US federal holidays as
// exceptions for doctorID. The call is idempotent on the API side.
func (c *Client) SyncHolidays(ctx context.Context, doctorID string, year int) (SyncResult, error) {
	if doctorID == "" || year <= 0 {
		return SyncResult{}, model.Validationf("doctor id and year are required")
	}
	body := map[string]any{"doctor_id": doctorID, "year": year}
	raw, err := c.do(ctx, "sync holidays", http.MethodPost, exceptionsPath(doctorID)+"/sync-holidays", url.Values{"year": {strconv.Itoa(year)}}, body)
	if err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	if len(raw) > 0 {
		res, _ = decodeOne[SyncResult](raw)
	}
	return res, nil
}

// decodeError reports a 2xx body the client could not normalize.
func decodeError(op string, err error) error {
	return &model.TransportError{Op: op, Err: fmt.Errorf("unexpected response: %w", err)}
}
