package model

import (
	"fmt"
	"strings"
)

// Status is open at the boundary: values the service does not recognise are
// kept verbatim and land in BucketOther.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
	StatusFailed      Status = "failed"
)

var statusAliases = map[string]Status{
	"scheduled":   StatusScheduled,
	"booked":      StatusScheduled,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"rescheduled": StatusRescheduled,
	"no_show":     StatusNoShow,
	"noshow":      StatusNoShow,
	"failed":      StatusFailed,
	"failure":     StatusFailed,
}

// ParseStatus normalizes spelling variants ("Canceled", "In Progress",
// "no-show", "failure"). Unrecognised input is lowercased and kept.
func ParseStatus(raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return Status(key)
}

func (s Status) Known() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled,
		StatusRescheduled, StatusNoShow, StatusFailed:
		return true
	}
	return false
}

// Terminal statuses never come back to life and never hold a slot.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusFailed:
		return true
	}
	return false
}

// OccupiesSlot is true for every non-terminal status, unknown ones included.
func (s Status) OccupiesSlot() bool { return !s.Terminal() }

type Bucket string

const (
	BucketActive    Bucket = "active"
	BucketCompleted Bucket = "completed"
	BucketCancelled Bucket = "cancelled"
	BucketMissed    Bucket = "missed"
	BucketOther     Bucket = "other"
)

func (s Status) Bucket() Bucket {
	switch s {
	case StatusScheduled, StatusInProgress, StatusRescheduled:
		return BucketActive
	case StatusCompleted:
		return BucketCompleted
	case StatusCancelled:
		return BucketCancelled
	case StatusNoShow, StatusFailed:
		return BucketMissed
	default:
		return BucketOther
	}
}

// Label is the human form shown in listings.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusNoShow:
		return "No-Show"
	case "":
		return "Unknown"
	}
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

var transitions = map[Status][]Status{
	StatusScheduled:   {StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow, StatusFailed},
	StatusRescheduled: {StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow, StatusFailed},
	StatusInProgress:  {StatusCompleted, StatusCancelled, StatusFailed},
}

// CanTransition checks a status change against the appointment lifecycle.
// Terminal statuses accept nothing; unknown source statuses accept anything,
// since the clinic API owns their meaning.
func (s Status) CanTransition(to Status) error {
	if s.Terminal() {
		return fmt.Errorf("%w: appointment is already %s", ErrInvalidTransition, s.Label())
	}
	if !s.Known() {
		return nil
	}
	for _, next := range transitions[s] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.Label(), to.Label())
}
