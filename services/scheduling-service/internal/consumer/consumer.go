// Package consumer keeps cached availability honest when schedules change
// somewhere else: another replica, the clinic API, or an operator.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicdash/clinicsched/libs/kafkax"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/outbox"
)

type Invalidator interface {
	Invalidate(ctx context.Context, clinicID, doctorID string, dates ...clock.Date) error
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader MessageReader
	logger *slog.Logger
	cache  Invalidator
	// schedule is the topic carrying schedule-changed events.
	schedule string
}

type Config struct {
	Brokers string
	GroupID string
	// ScheduleTopic defaults to outbox.EventScheduleChanged.
	ScheduleTopic string
}

// Topics are the topics a consumer built from cfg subscribes to.
func (cfg Config) Topics() []string {
	return []string{
		cfg.scheduleTopic(),
		outbox.EventAppointmentBooked,
		outbox.EventAppointmentRescheduled,
		outbox.EventAppointmentCancelled,
	}
}

func (cfg Config) scheduleTopic() string {
	if cfg.ScheduleTopic == "" {
		return outbox.EventScheduleChanged
	}
	return cfg.ScheduleTopic
}

func New(logger *slog.Logger, cfg Config, cache Invalidator) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics(),
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(logger, reader, cfg.scheduleTopic(), cache)
}

func NewWithReader(logger *slog.Logger, reader MessageReader, scheduleTopic string, cache Invalidator) *Consumer {
	if scheduleTopic == "" {
		scheduleTopic = outbox.EventScheduleChanged
	}
	return &Consumer{reader: reader, logger: logger, cache: cache, schedule: scheduleTopic}
}

// Run reads until ctx ends. A message that fails to apply is logged and
// skipped; the cache TTL bounds how long the day can stay stale.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		meta := kafkax.ExtractEventMeta(msg)
		if err := c.Handle(ctxSpan, msg); err != nil {
			c.logger.Error("schedule event not applied", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// Handle applies one message to the cache.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case c.schedule:
		var evt outbox.ScheduleChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode schedule change: %w", err)
		}
		if evt.DoctorID == "" && evt.ClinicID == "" {
			return fmt.Errorf("schedule change names neither clinic nor doctor")
		}
		dates, err := parseDates(evt.Dates...)
		if err != nil {
			return err
		}
		return c.cache.Invalidate(ctx, evt.ClinicID, evt.DoctorID, dates...)

	case outbox.EventAppointmentBooked, outbox.EventAppointmentRescheduled, outbox.EventAppointmentCancelled:
		var evt outbox.AppointmentPayload
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode appointment event: %w", err)
		}
		if evt.DoctorID == "" {
			return fmt.Errorf("appointment event %s has no doctor", evt.AppointmentID)
		}
		var raw []string
		for _, s := range []string{evt.Date, evt.PreviousDate} {
			if s != "" {
				raw = append(raw, s)
			}
		}
		// Without a date every day of the doctor's cache is suspect.
		dates, err := parseDates(raw...)
		if err != nil {
			return err
		}
		return c.cache.Invalidate(ctx, evt.ClinicID, evt.DoctorID, dates...)
	}
	c.logger.Debug("ignoring message", "topic", msg.Topic)
	return nil
}

func parseDates(raw ...string) ([]clock.Date, error) {
	out := make([]clock.Date, 0, len(raw))
	for _, s := range raw {
		d, err := clock.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
