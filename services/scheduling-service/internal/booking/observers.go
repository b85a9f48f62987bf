package booking

import (
	"context"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

type Invalidator interface {
	Invalidate(ctx context.Context, clinicID, doctorID string, dates ...clock.Date) error
}

// InvalidateOn drops cached availability for the days a change touched,
// conflicts included: a conflict means the cached day was already wrong.
func InvalidateOn(cache Invalidator) Observer {
	return ObserverFunc(func(ctx context.Context, c Change) error {
		dates := c.Dates()
		if len(dates) == 0 {
			// A cancel without a known date could have freed any day.
			return cache.Invalidate(ctx, c.Appointment.ClinicID, c.Appointment.DoctorID)
		}
		return cache.Invalidate(ctx, c.Appointment.ClinicID, c.Appointment.DoctorID, dates...)
	})
}
