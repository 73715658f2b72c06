package reminder

import (
	"context"
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

const taskColumns = `
	id, appointment_id, tier, fire_at, status, created_at, updated_at
`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.Tier,
		&t.FireAt,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) CreateBatch(ctx context.Context, tasks []Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reminder batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range tasks {
		_, err := tx.Exec(ctx, `
			INSERT INTO reminder_tasks (id, appointment_id, tier, fire_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, t.ID, t.AppointmentID, t.Tier, t.FireAt, t.Status)
		if err != nil {
			return fmt.Errorf("insert reminder task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reminder batch: %w", err)
	}

	return nil
}

func (r *PgRepository) FindDue(ctx context.Context, now time.Time) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM reminder_tasks
		WHERE status = 'pending'
		  AND fire_at <= $1
		ORDER BY fire_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *PgRepository) ListByAppointment(ctx context.Context, apptID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM reminder_tasks
		WHERE appointment_id = $1
		ORDER BY fire_at ASC
	`, apptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	var result []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminder_tasks
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
	`, id, to, from)
	if err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func (r *PgRepository) SkipPendingForAppointment(ctx context.Context, apptID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminder_tasks
		SET status = 'skipped',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'pending'
	`, apptID)
	if err != nil {
		return 0, fmt.Errorf("skip reminders: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
