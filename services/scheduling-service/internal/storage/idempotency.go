// Package storage is the service's own Postgres state. The clinic API owns
// appointments; this database only remembers booking requests and events.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicdash/clinicsched/libs/db"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *db.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ErrKeyReused is returned when an idempotency key arrives with a different request.
var ErrKeyReused = fmt.Errorf("idempotency key reused with a different request: %w", model.ErrConflict)

type IdempotencyRecord struct {
	ClinicID        string
	IdempotencyKey  string
	RequestHash     string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Outcome is the stored result of a request.
type Outcome struct {
	AppointmentID string
	StatusCode    int
	Body          []byte
}

type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Run executes fn at most once per (clinicID, key). The key row stays locked
// while fn runs so a concurrent duplicate waits and then replays. A failed fn
// rolls the key back and the request may be retried with the same key.
func (r *IdempotencyRepository) Run(ctx context.Context, clinicID, key, requestHash string, fn func(context.Context) (Outcome, error)) (Outcome, bool, error) {
	var (
		out      Outcome
		replayed bool
	)
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		rec, found, err := r.LockIdempotencyKey(ctx, tx, clinicID, key, requestHash)
		if err != nil {
			return err
		}
		if found && rec.StatusCode != 0 {
			if rec.RequestHash != "" && rec.RequestHash != requestHash {
				return ErrKeyReused
			}
			out = Outcome{AppointmentID: rec.AppointmentID, StatusCode: rec.StatusCode, Body: rec.ResponsePayload}
			replayed = true
			return nil
		}

		out, err = fn(ctx)
		if err != nil {
			return err
		}
		return r.FinalizeIdempotency(ctx, tx, clinicID, key, out)
	})
	if err != nil {
		return Outcome{}, false, err
	}
	return out, replayed, nil
}

func (r *IdempotencyRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, clinicID, key, requestHash string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, clinicID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (clinic_id, idempotency_key, request_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (clinic_id, idempotency_key) DO NOTHING
	`, clinicID, key, requestHash)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, clinicID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	// Another request may have inserted and finished between our two selects.
	return rec, rec.StatusCode != 0, nil
}

func (r *IdempotencyRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, clinicID, key string, out Outcome) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, ''),
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE clinic_id = $1 AND idempotency_key = $2
	`, clinicID, key, out.AppointmentID, out.StatusCode, out.Body)
	return err
}

// PurgeBefore drops keys older than cutoff and reports how many went.
func (r *IdempotencyRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM booking_idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *IdempotencyRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, clinicID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT clinic_id,
			idempotency_key,
			request_hash,
			COALESCE(appointment_id, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE clinic_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, clinicID, key).Scan(
		&rec.ClinicID,
		&rec.IdempotencyKey,
		&rec.RequestHash,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
