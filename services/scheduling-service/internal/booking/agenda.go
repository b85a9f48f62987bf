package booking

import (
	"sort"
	"sync"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

// Partition splits appts into upcoming (dated today or later and not
// cancelled) and past (everything else). Upcoming is soonest first, past is
// most recent first.
func Partition(appts []model.Appointment, today clock.Date) (upcoming, past []model.Appointment) {
	for _, a := range appts {
		if !a.Date.Before(today) && a.Status != model.StatusCancelled {
			upcoming = append(upcoming, a)
		} else {
			past = append(past, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return earlier(upcoming[i], upcoming[j]) })
	sort.SliceStable(past, func(i, j int) bool { return earlier(past[j], past[i]) })
	return upcoming, past
}

func earlier(a, b model.Appointment) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	return a.Time < b.Time
}

// Agenda is the appointment list a session works against. Upcoming and Past
// are derived on every read.
type Agenda struct {
	mu    sync.RWMutex
	appts []model.Appointment
}

func NewAgenda(appts []model.Appointment) *Agenda {
	a := &Agenda{}
	a.Set(appts)
	return a
}

func (a *Agenda) Set(appts []model.Appointment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appts = append([]model.Appointment(nil), appts...)
}

func (a *Agenda) Add(appt model.Appointment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appts = append(a.appts, appt)
}

// Replace swaps the appointment with the same ID, appending when absent.
func (a *Agenda) Replace(appt model.Appointment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.appts {
		if a.appts[i].ID == appt.ID {
			a.appts[i] = appt
			return
		}
	}
	a.appts = append(a.appts, appt)
}

func (a *Agenda) MarkCancelled(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.appts {
		if a.appts[i].ID == id {
			a.appts[i].Status = model.StatusCancelled
			return true
		}
	}
	return false
}

func (a *Agenda) Get(id string) (model.Appointment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, appt := range a.appts {
		if appt.ID == id {
			return appt, true
		}
	}
	return model.Appointment{}, false
}

func (a *Agenda) All() []model.Appointment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.Appointment(nil), a.appts...)
}

func (a *Agenda) Upcoming(today clock.Date) []model.Appointment {
	up, _ := Partition(a.All(), today)
	return up
}

func (a *Agenda) Past(today clock.Date) []model.Appointment {
	_, past := Partition(a.All(), today)
	return past
}
