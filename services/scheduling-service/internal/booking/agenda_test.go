package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

func TestPartitionExhaustiveAndExclusive(t *testing.T) {
	appts := []model.Appointment{
		{ID: "future", Date: tomorrow, Time: nineAM, Status: model.StatusScheduled},
		{ID: "today", Date: today, Time: tenAM, Status: model.StatusScheduled},
		{ID: "today-early", Date: today, Time: nineAM, Status: model.StatusInProgress},
		{ID: "future-cancelled", Date: tomorrow, Time: tenAM, Status: model.StatusCancelled},
		{ID: "yesterday", Date: today.AddDays(-1), Time: nineAM, Status: model.StatusCompleted},
		{ID: "last-week", Date: today.AddDays(-7), Time: nineAM, Status: model.StatusScheduled},
		{ID: "future-unknown", Date: today.AddDays(3), Time: nineAM, Status: model.Status("waitlisted")},
	}

	upcoming, past := Partition(appts, today)
	assert.Equal(t, []string{"today-early", "today", "future", "future-unknown"}, ids(upcoming))
	assert.Equal(t, []string{"future-cancelled", "yesterday", "last-week"}, ids(past))
	assert.Len(t, append(upcoming, past...), len(appts))
}

func TestAgendaRecomputesOnEveryRead(t *testing.T) {
	a := NewAgenda([]model.Appointment{{ID: "a1", Date: tomorrow, Time: nineAM, Status: model.StatusScheduled}})
	assert.Equal(t, []string{"a1"}, ids(a.Upcoming(today)))

	assert.True(t, a.MarkCancelled("a1"))
	assert.Empty(t, a.Upcoming(today))
	assert.Equal(t, []string{"a1"}, ids(a.Past(today)))
	assert.False(t, a.MarkCancelled("missing"))

	// Moving a past appointment into the future brings it back.
	a.Replace(model.Appointment{ID: "a1", Date: today.AddDays(2), Time: tenAM, Status: model.StatusRescheduled})
	assert.Equal(t, []string{"a1"}, ids(a.Upcoming(today)))

	a.Add(model.Appointment{ID: "a2", Date: today.AddDays(-2), Status: model.StatusCompleted})
	assert.Len(t, a.All(), 2)
	got, ok := a.Get("a2")
	assert.True(t, ok)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func ids(appts []model.Appointment) []string {
	out := make([]string, len(appts))
	for i, a := range appts {
		out[i] = a.ID
	}
	return out
}
