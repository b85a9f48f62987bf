package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/clinicdash/clinicsched/libs/kafkax"
	otelx "github.com/clinicdash/clinicsched/libs/otel"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

type memAppender struct{ events []Event }

func (m *memAppender) Append(_ context.Context, evt Event) error {
	m.events = append(m.events, evt)
	return nil
}

func TestRecorderAppointmentEvents(t *testing.T) {
	mem := &memAppender{}
	rec := NewRecorder(mem)
	at := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := clock.NewDate(2030, time.June, 10)
	appt := model.Appointment{
		ID: "a1", ClinicID: "c1", DoctorID: "doc-1", PatientID: "p1",
		Date: clock.NewDate(2030, time.June, 4), Time: clock.MustTimeOfDay(14, 30), Status: model.StatusRescheduled,
	}

	require.NoError(t, rec.AppointmentChanged(context.Background(), booking.Change{Kind: booking.ChangeRescheduled, Appointment: appt, PreviousDate: &prev, At: at}))
	require.NoError(t, rec.AppointmentChanged(context.Background(), booking.Change{Kind: booking.ChangeConflict, Appointment: appt, At: at}))
	require.Len(t, mem.events, 1, "conflicts are not recorded")

	evt := mem.events[0]
	assert.Equal(t, EventAppointmentRescheduled, evt.EventType)
	assert.Equal(t, "a1", evt.AggregateID)

	var p AppointmentPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "2030-06-04", p.Date)
	assert.Equal(t, "14:30", p.Time)
	assert.Equal(t, "2030-06-10", p.PreviousDate)
	assert.Equal(t, "rescheduled", p.Status)
	assert.True(t, at.Equal(p.OccurredAt))
}

func TestRecorderScheduleChanged(t *testing.T) {
	mem := &memAppender{}
	rec := NewRecorder(mem)

	require.NoError(t, rec.ScheduleChanged(context.Background(), "c1", "doc-1", "exception", clock.NewDate(2030, time.July, 4)))
	require.Len(t, mem.events, 1)
	assert.Equal(t, EventScheduleChanged, mem.events[0].EventType)
	assert.Equal(t, "doc-1", mem.events[0].AggregateID)

	var msg ScheduleChanged
	require.NoError(t, json.Unmarshal(mem.events[0].Payload, &msg))
	assert.Equal(t, []string{"2030-07-04"}, msg.Dates)
	assert.Equal(t, "exception", msg.Cause)
}

func TestToMessageCarriesMeta(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	msg := toMessage(context.Background(), Record{
		EventID: "e1", AggregateID: "doc-1", EventType: EventScheduleChanged, Payload: []byte(`{}`),
		Trace: otelx.TraceContext{Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})
	assert.Equal(t, EventScheduleChanged, msg.Topic)
	assert.Equal(t, []byte("doc-1"), msg.Key)
	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, "e1", meta.EventID)
	assert.Equal(t, EventScheduleChanged, meta.EventType)
	assert.NotEmpty(t, kafkax.HeaderValue(msg.Headers, "traceparent"))
}
