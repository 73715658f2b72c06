package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, slot_id, doctor_name, location_name,
	start_time, duration_minutes, status, created_at, updated_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		durMin int64
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.SlotID,
		&a.DoctorName,
		&a.LocationName,
		&a.StartTime,
		&durMin,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Duration = time.Duration(durMin) * time.Minute
	return &a, nil
}

func (r *PgRepository) CreateConfirmed(ctx context.Context, patientID uuid.UUID, h slot.Hold, duration time.Duration) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// held→booked and the appointment insert commit together or not at all.
	row := tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    hold_token = NULL,
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND hold_token = $2
		RETURNING id, doctor_name, location_name, start_time
	`, h.SlotID, h.Token)

	var (
		slotID       uuid.UUID
		doctorName   string
		locationName string
		startTime    time.Time
	)
	if err := row.Scan(&slotID, &doctorName, &locationName, &startTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, slot.ErrHoldNotFound
		}
		return nil, fmt.Errorf("commit held slot: %w", err)
	}

	apptRow := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, slot_id, doctor_name, location_name,
			start_time, duration_minutes, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'confirmed', now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), patientID, slotID, doctorName, locationName, startTime, int64(duration/time.Minute))

	appt, err := scanAppointment(apptRow)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
