// Package hours models a clinic's weekly working hours: one open/close window
// or a closed flag per weekday.
package hours

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
)

var ErrInvalidHours = errors.New("invalid working hours")

// Default window used for days that were never configured (9:00 AM to 5:00 PM).
const (
	DefaultOpen  clock.TimeOfDay = 540
	DefaultClose clock.TimeOfDay = 1020
)

type WorkingHours struct {
	Day    time.Weekday
	Open   clock.TimeOfDay
	Close  clock.TimeOfDay
	Closed bool
}

func (h WorkingHours) Validate() error {
	if h.Day < time.Sunday || h.Day > time.Saturday {
		return fmt.Errorf("%w: unknown weekday %d", ErrInvalidHours, h.Day)
	}
	if h.Closed {
		return nil
	}
	if !h.Open.Valid() || !h.Close.Valid() {
		return fmt.Errorf("%w: %s times out of range", ErrInvalidHours, h.Day)
	}
	if h.Open >= h.Close {
		return fmt.Errorf("%w: %s opens at %s but closes at %s", ErrInvalidHours, h.Day, h.Open, h.Close)
	}
	return nil
}

// Week holds one entry per weekday, indexed by time.Weekday.
type Week [7]WorkingHours

// DefaultWeek is Monday to Friday 9:00 AM to 5:00 PM, weekend closed.
func DefaultWeek() Week {
	var w Week
	for d := time.Sunday; d <= time.Saturday; d++ {
		w[d] = WorkingHours{
			Day:    d,
			Open:   DefaultOpen,
			Close:  DefaultClose,
			Closed: d == time.Saturday || d == time.Sunday,
		}
	}
	return w
}

func (w Week) Validate() error {
	var errs []error
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w[d].Day != d {
			errs = append(errs, fmt.Errorf("%w: slot %s holds %s", ErrInvalidHours, d, w[d].Day))
			continue
		}
		if err := w[d].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w Week) For(day time.Weekday) WorkingHours { return w[day] }

// Window returns the bookable [open, close) range for day.
func (w Week) Window(day time.Weekday) (open, closeAt clock.TimeOfDay, ok bool) {
	h := w[day]
	if h.Closed {
		return 0, 0, false
	}
	return h.Open, h.Close, true
}

// Toggle flips the closed flag for day. Reopening a day whose stored window is
// unusable restores the default window.
func (w *Week) Toggle(day time.Weekday) {
	h := &w[day]
	h.Closed = !h.Closed
	if !h.Closed && h.Open >= h.Close {
		h.Open, h.Close = DefaultOpen, DefaultClose
	}
}

// SetHours opens day with the given window, leaving w untouched on error.
func (w *Week) SetHours(day time.Weekday, open, closeAt clock.TimeOfDay) error {
	next := WorkingHours{Day: day, Open: open, Close: closeAt}
	if err := next.Validate(); err != nil {
		return err
	}
	w[day] = next
	return nil
}

// Row is the wire form exchanged with the clinic API.
type Row struct {
	Day      string `json:"day"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	IsClosed bool   `json:"is_closed"`
}

// Rows renders the week Monday first, the order the dashboard shows it in.
func (w Week) Rows() []Row {
	out := make([]Row, 0, 7)
	for i := 1; i <= 7; i++ {
		h := w[time.Weekday(i%7)]
		out = append(out, Row{
			Day:      h.Day.String(),
			Open:     h.Open.Display(),
			Close:    h.Close.Display(),
			IsClosed: h.Closed,
		})
	}
	return out
}

// FromRows builds a Week from wire rows. Days missing from rows keep the
// DefaultWeek entry. Times may be in 12-hour or 24-hour form.
func FromRows(rows []Row) (Week, error) {
	w := DefaultWeek()
	for _, r := range rows {
		day, err := ParseWeekday(r.Day)
		if err != nil {
			return Week{}, err
		}
		h := WorkingHours{Day: day, Closed: r.IsClosed, Open: DefaultOpen, Close: DefaultClose}
		if strings.TrimSpace(r.Open) != "" || !r.IsClosed {
			if h.Open, err = clock.Parse(r.Open); err != nil {
				return Week{}, fmt.Errorf("%w: %s open: %v", ErrInvalidHours, day, err)
			}
		}
		if strings.TrimSpace(r.Close) != "" || !r.IsClosed {
			if h.Close, err = clock.Parse(r.Close); err != nil {
				return Week{}, fmt.Errorf("%w: %s close: %v", ErrInvalidHours, day, err)
			}
		}
		if err := h.Validate(); err != nil {
			return Week{}, err
		}
		w[day] = h
	}
	return w, nil
}

// ParseWeekday accepts full or three-letter English names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidHours, s)
}
