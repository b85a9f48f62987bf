// Package clock is the one place that knows about calendar dates, wall-clock
// times and the clinic timezone. Every "is this today" and 12/24-hour
// conversion in the service goes through here.
package clock

import (
	"fmt"
	"time"
)

const DefaultTimezone = "America/New_York"

// Zone pins the clinic timezone and the source of "now".
type Zone struct {
	loc *time.Location
	now func() time.Time
}

func NewZone(loc *time.Location) *Zone {
	return NewZoneWithNow(loc, time.Now)
}

// NewZoneWithNow is used by tests to freeze time.
func NewZoneWithNow(loc *time.Location, now func() time.Time) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Zone{loc: loc, now: now}
}

// LoadZone resolves an IANA name; an empty name selects DefaultTimezone.
func LoadZone(name string) (*Zone, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewZone(loc), nil
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) Now() time.Time { return z.now().In(z.loc) }

func (z *Zone) Today() Date { return DateOf(z.now(), z.loc) }

func (z *Zone) DateOf(t time.Time) Date { return DateOf(t, z.loc) }

// TimeOf returns the wall-clock time of t in the clinic timezone.
func (z *Zone) TimeOf(t time.Time) TimeOfDay {
	local := t.In(z.loc)
	return TimeOfDay(local.Hour()*60 + local.Minute())
}

func (z *Zone) IsToday(d Date) bool { return d.Equal(z.Today()) }

// At builds an instant on date d at wall-clock t in the clinic timezone.
func (z *Zone) At(d Date, t TimeOfDay) time.Time { return d.At(t, z.loc) }
