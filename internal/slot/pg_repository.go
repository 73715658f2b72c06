package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `
	id, doctor_id, doctor_name, specialty, location_id, location_name,
	start_time, capacity_minutes, status,
	hold_token, hold_expires_at, created_at, updated_at
`

func ScanSlot(row pgx.Row) (*Slot, error) {
	var (
		s       Slot
		capMin  int64
		token   *uuid.UUID
		expires *time.Time
	)

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.DoctorName,
		&s.Specialty,
		&s.LocationID,
		&s.LocationName,
		&s.StartTime,
		&capMin,
		&s.Status,
		&token,
		&expires,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Capacity = time.Duration(capMin) * time.Minute
	s.HoldToken = token
	s.HoldExpiresAt = expires
	return &s, nil
}

func (r *PgRepository) Find(ctx context.Context, f Filter) ([]Slot, error) {
	// Earliest-first ordering is part of the caller contract.
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'open'
		  AND capacity_minutes >= $1
	`
	args := []any{int64(f.MinDuration / time.Minute)}

	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if f.LocationID != nil {
		args = append(args, *f.LocationID)
		query += fmt.Sprintf(" AND location_id = $%d", len(args))
	}
	if f.Specialty != nil {
		args = append(args, *f.Specialty)
		query += fmt.Sprintf(" AND lower(specialty) = lower($%d)", len(args))
	}

	query += " ORDER BY start_time ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := ScanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return ScanSlot(row)
}

func (r *PgRepository) Hold(ctx context.Context, id, token uuid.UUID, duration time.Duration, expiresAt time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'held',
		    hold_token = $2,
		    hold_expires_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND capacity_minutes >= $4
		RETURNING `+slotColumns+`
	`, id, token, expiresAt, int64(duration/time.Minute))

	s, err := ScanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Distinguish a missing slot from one that lost the race.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	return s, nil
}

func (r *PgRepository) Commit(ctx context.Context, id, token uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    hold_token = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND hold_token = $2
		RETURNING `+slotColumns+`
	`, id, token)

	s, err := ScanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}

	return s, nil
}

func (r *PgRepository) Release(ctx context.Context, id, token uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'open',
		    hold_token = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND hold_token = $2
	`, id, token)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHoldNotFound
	}

	return nil
}

func (r *PgRepository) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'open',
		    hold_token = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE status = 'held'
		  AND hold_expires_at IS NOT NULL
		  AND hold_expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("release expired holds: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
