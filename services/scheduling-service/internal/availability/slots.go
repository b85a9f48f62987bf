package availability

import (
	"sort"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/exceptions"
)

// Interval is a half-open wall-clock range [Start, End) within one day.
type Interval struct {
	Start clock.TimeOfDay
	End   clock.TimeOfDay
}

// AvailableSlots returns slot start times within the given windows where a
// booking of length duration minutes fits entirely inside the window and does
// not overlap any busy interval. Slots start every step minutes from each
// window's start.
func AvailableSlots(windows []Interval, duration, step int, busy []Interval) []clock.TimeOfDay {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var slots []clock.TimeOfDay
	for _, w := range windows {
		if w.End <= w.Start || int(w.Start)+duration > int(w.End) {
			continue
		}
		for t := w.Start; int(t)+duration <= int(w.End); t += clock.TimeOfDay(step) {
			if !overlapsAny(t, t+clock.TimeOfDay(duration), busy) {
				slots = append(slots, t)
			}
		}
	}
	return slots
}

func overlapsAny(start, end clock.TimeOfDay, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start < b.End && b.Start < end {
			return true
		}
	}
	return false
}

// SubtractBlocks removes the blocked windows from base, returning what stays
// open in chronological order.
func SubtractBlocks(base Interval, blocks []exceptions.Window) []Interval {
	if base.End <= base.Start {
		return nil
	}
	var clipped []Interval
	for _, b := range blocks {
		s, e := b.Start, b.End
		if e <= base.Start || s >= base.End {
			continue
		}
		if s < base.Start {
			s = base.Start
		}
		if e > base.End {
			e = base.End
		}
		if e > s {
			clipped = append(clipped, Interval{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start < clipped[j].Start })
	var out []Interval
	cursor := base.Start
	for _, b := range clipped {
		if b.Start > cursor {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < base.End {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}
