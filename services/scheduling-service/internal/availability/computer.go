package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/hours"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// Computer gathers the inputs for a day concurrently and runs Compute.
type Computer struct {
	dir     Directory
	src     Source
	zone    *clock.Zone
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Computer)

// WithTimeout bounds the whole fetch; zero leaves it to the caller's context.
func WithTimeout(d time.Duration) Option { return func(c *Computer) { c.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(c *Computer) { c.logger = l } }

func NewComputer(dir Directory, src Source, zone *clock.Zone, opts ...Option) *Computer {
	c := &Computer{dir: dir, src: src, zone: zone, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Slots computes the bookable slots for q. Any failure to gather inputs is
// reported as model.ErrUnavailable wrapping the cause, never as an empty day.
func (c *Computer) Slots(ctx context.Context, q Query) (Result, error) {
	if q.DoctorID == "" || q.Date.IsZero() {
		return Result{}, model.Validationf("doctor and date are required")
	}
	today := c.zone.Today()
	if q.Date.Before(today) {
		return Compute(Input{Date: q.Date, Today: today}), nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		week  hours.Week
		excs  []exceptions.Exception
		appts []model.Appointment
		raw   Day
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		week, err = c.dir.WorkingHours(gctx, q.ClinicID)
		return wrapInput("working hours", err)
	})
	g.Go(func() error {
		var err error
		excs, err = c.dir.Exceptions(gctx, q.DoctorID)
		return wrapInput("exceptions", err)
	})
	g.Go(func() error {
		var err error
		appts, err = c.dir.Appointments(gctx, model.Filter{ClinicID: q.ClinicID, DoctorID: q.DoctorID, From: &q.Date, To: &q.Date})
		return wrapInput("appointments", err)
	})
	g.Go(func() error {
		var err error
		raw, err = c.src.Availability(gctx, q)
		return wrapInput("raw availability", err)
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("availability inputs failed",
			"clinic_id", q.ClinicID, "doctor_id", q.DoctorID, "date", q.Date.String(), "err", err)
		return Result{}, err
	}

	now := c.zone.Now()
	return Compute(Input{
		Date:         q.Date,
		DoctorID:     q.DoctorID,
		Week:         week,
		Exceptions:   exceptions.ForDoctor(excs, q.DoctorID),
		Appointments: appts,
		Raw:          raw,
		Today:        c.zone.DateOf(now),
		Now:          c.zone.TimeOf(now),
	}), nil
}

func wrapInput(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", model.ErrUnavailable, what, err)
}
