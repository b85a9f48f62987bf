package booking

import (
	"errors"
	"fmt"

	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

var (
	// ErrInFlight: another book, reschedule or cancel holds the same appointment.
	ErrInFlight = fmt.Errorf("another change is already in flight: %w", model.ErrConflict)
	// ErrSlotTaken: the clinic API rejected the slot as booked since it was offered.
	ErrSlotTaken = fmt.Errorf("slot is no longer available: %w", model.ErrConflict)
	// ErrSlotInPast: the chosen slot had passed by the time it was submitted.
	ErrSlotInPast = fmt.Errorf("slot is in the past: %w", model.ErrValidation)
	// ErrStale: a newer date pick superseded this fetch; its result was dropped.
	ErrStale = errors.New("superseded by a newer request")
	// ErrInvalidState: the operation is not allowed in the workflow's current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
)
