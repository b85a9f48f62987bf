package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay bounds every TimeOfDay value: [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

var ErrInvalidTime = errors.New("invalid time of day")

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay is NewTimeOfDay for constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Valid() bool { return t >= 0 && t < MinutesPerDay }

// Display renders the 12-hour form used on the wire and in the UI, e.g. "9:00 AM".
func (t TimeOfDay) Display() string {
	h := t.Hour()
	modifier := "AM"
	if h >= 12 {
		modifier = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, t.Minute(), modifier)
}

// Clock24 renders the zero-padded 24-hour form required by booking calls, e.g. "09:00".
func (t TimeOfDay) Clock24() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) String() string { return t.Display() }

// ParseDisplay parses a 12-hour string such as "9:00 AM", "12:30 pm" or "9:00AM".
// The trailing modifier governs the wraparound: 12 AM is midnight, 12 PM stays noon.
func ParseDisplay(s string) (TimeOfDay, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	var pm bool
	switch {
	case strings.HasSuffix(raw, "AM"):
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "AM"))
	case strings.HasSuffix(raw, "PM"):
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "PM"))
		pm = true
	default:
		return 0, fmt.Errorf("%w: %q has no AM/PM modifier", ErrInvalidTime, s)
	}

	h, m, err := splitClock(raw)
	if err != nil || h < 1 || h > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if h == 12 {
		h = 0
	}
	if pm {
		h += 12
	}
	return NewTimeOfDay(h, m)
}

// Parse24 parses "09:00", "9:00" or "09:00:00". Seconds are accepted and dropped.
func Parse24(s string) (TimeOfDay, error) {
	h, m, err := splitClock(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	t, err := NewTimeOfDay(h, m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// Parse accepts either the 12-hour display form or the 24-hour form.
func Parse(s string) (TimeOfDay, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if strings.HasSuffix(upper, "AM") || strings.HasSuffix(upper, "PM") {
		return ParseDisplay(s)
	}
	return Parse24(s)
}

// To24 converts a 12-hour display string to the 24-hour "HH:MM" form.
func To24(display string) (string, error) {
	t, err := ParseDisplay(display)
	if err != nil {
		return "", err
	}
	return t.Clock24(), nil
}

// From24 converts a 24-hour "HH:MM" string to the 12-hour display form.
func From24(clock24 string) (string, error) {
	t, err := Parse24(clock24)
	if err != nil {
		return "", err
	}
	return t.Display(), nil
}

func splitClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, ErrInvalidTime
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	if len(parts[1]) != 2 {
		return 0, 0, ErrInvalidTime
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 3 {
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return 0, 0, err
		}
	}
	return h, m, nil
}
