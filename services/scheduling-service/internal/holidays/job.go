// Package holidays keeps doctors' calendars blocked on US federal holidays.
package holidays

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
)

// DefaultSpec runs at 03:00 on December 1st, ahead of the new year.
const DefaultSpec = "0 3 1 12 *"

type ExceptionStore interface {
	Exceptions(ctx context.Context, doctorID string) ([]exceptions.Exception, error)
	CreateException(ctx context.Context, e exceptions.Exception) (exceptions.Exception, error)
}

type Notifier interface {
	ScheduleChanged(ctx context.Context, clinicID, doctorID, cause string, dates ...clock.Date) error
}

type Config struct {
	Spec       string
	DoctorIDs  []string
	RunOnStart bool
}

// DoctorResult is the outcome of one doctor's sync.
type DoctorResult struct {
	DoctorID string
	Created  []exceptions.Exception
	Err      error
}

type Job struct {
	store  ExceptionStore
	notify Notifier
	zone   *clock.Zone
	logger *slog.Logger
	cfg    Config
}

func NewJob(store ExceptionStore, notify Notifier, zone *clock.Zone, logger *slog.Logger, cfg Config) *Job {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	return &Job{store: store, notify: notify, zone: zone, logger: logger, cfg: cfg}
}

// SyncDoctor creates whichever of year's holidays doctorID is missing.
func (j *Job) SyncDoctor(ctx context.Context, doctorID string, year int) ([]exceptions.Exception, error) {
	existing, err := j.store.Exceptions(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list exceptions for %s: %w", doctorID, err)
	}
	var created []exceptions.Exception
	for _, e := range exceptions.PlanHolidaySync(doctorID, existing, year) {
		stored, err := j.store.CreateException(ctx, e)
		if err != nil {
			return created, fmt.Errorf("create %s holiday for %s: %w", e.Date, doctorID, err)
		}
		created = append(created, stored)
	}
	if len(created) > 0 && j.notify != nil {
		dates := make([]clock.Date, len(created))
		for i, e := range created {
			dates[i] = e.Date
		}
		if err := j.notify.ScheduleChanged(ctx, "", doctorID, "holiday_sync", dates...); err != nil {
			j.logger.Warn("schedule change not recorded", "doctor_id", doctorID, "err", err)
		}
	}
	return created, nil
}

// SyncYear runs SyncDoctor for every configured doctor. One doctor failing
// does not stop the others; the joined error reports all failures.
func (j *Job) SyncYear(ctx context.Context, year int) ([]DoctorResult, error) {
	results := make([]DoctorResult, 0, len(j.cfg.DoctorIDs))
	var errs []error
	for _, id := range j.cfg.DoctorIDs {
		created, err := j.SyncDoctor(ctx, id, year)
		results = append(results, DoctorResult{DoctorID: id, Created: created, Err: err})
		if err != nil {
			errs = append(errs, err)
			j.logger.Error("holiday sync failed", "doctor_id", id, "year", year, "err", err)
			continue
		}
		j.logger.Info("holiday sync done", "doctor_id", id, "year", year, "created", len(created))
	}
	return results, errors.Join(errs...)
}

// Run schedules next year's sync on the cron spec and blocks until ctx ends.
func (j *Job) Run(ctx context.Context) error {
	if len(j.cfg.DoctorIDs) == 0 {
		j.logger.Warn("holiday sync disabled (no doctor ids configured)")
		return nil
	}
	c := cron.New(cron.WithLocation(j.zone.Location()))
	if _, err := c.AddFunc(j.cfg.Spec, func() {
		_, _ = j.SyncYear(ctx, j.zone.Today().Year+1)
	}); err != nil {
		return fmt.Errorf("holiday sync schedule %q: %w", j.cfg.Spec, err)
	}
	if j.cfg.RunOnStart {
		_, _ = j.SyncYear(ctx, j.zone.Today().Year)
	}
	c.Start()
	j.logger.Info("holiday sync scheduled", "spec", j.cfg.Spec, "doctors", len(j.cfg.DoctorIDs))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// ValidateSpec reports whether spec parses as a standard five-field cron expression.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
