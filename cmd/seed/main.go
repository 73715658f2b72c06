package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/scheduling-agent/internal/db"
)

var specialties = []string{
	"Allergy",
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Pediatrics",
	"ENT",
}

var locations = []struct {
	id   uuid.UUID
	name string
}{
	{uuid.New(), "Main Street Clinic"},
	{uuid.New(), "Riverside Medical Center"},
	{uuid.New(), "Northgate Health Pavilion"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, 40, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS patients (
			id                  uuid PRIMARY KEY,
			first_name          text NOT NULL,
			last_name           text NOT NULL,
			date_of_birth       date NOT NULL,
			phone               text,
			email               text,
			insurance_carrier   text,
			insurance_member_id text,
			insurance_group_id  text,
			created_at          timestamptz NOT NULL DEFAULT now(),
			updated_at          timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_patients_identity
			ON patients (lower(first_name), lower(last_name), date_of_birth);

		CREATE TABLE IF NOT EXISTS slots (
			id               uuid PRIMARY KEY,
			doctor_id        uuid NOT NULL,
			doctor_name      text NOT NULL,
			specialty        text NOT NULL,
			location_id      uuid NOT NULL,
			location_name    text NOT NULL,
			start_time       timestamptz NOT NULL,
			capacity_minutes bigint NOT NULL,
			status           text NOT NULL DEFAULT 'open',
			hold_token       uuid,
			hold_expires_at  timestamptz,
			created_at       timestamptz NOT NULL DEFAULT now(),
			updated_at       timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_slots_search
			ON slots (specialty, status, start_time);
		CREATE INDEX IF NOT EXISTS idx_slots_hold_expiry
			ON slots (hold_expires_at) WHERE status = 'held';

		CREATE TABLE IF NOT EXISTS appointments (
			id               uuid PRIMARY KEY,
			patient_id       uuid NOT NULL REFERENCES patients (id),
			slot_id          uuid NOT NULL REFERENCES slots (id),
			doctor_name      text NOT NULL,
			location_name    text NOT NULL,
			start_time       timestamptz NOT NULL,
			duration_minutes bigint NOT NULL,
			status           text NOT NULL DEFAULT 'confirmed',
			created_at       timestamptz NOT NULL DEFAULT now(),
			updated_at       timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_appointments_patient
			ON appointments (patient_id);

		CREATE TABLE IF NOT EXISTS reminder_tasks (
			id             uuid PRIMARY KEY,
			appointment_id uuid NOT NULL REFERENCES appointments (id),
			tier           text NOT NULL,
			fire_at        timestamptz NOT NULL,
			status         text NOT NULL DEFAULT 'pending',
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_reminder_tasks_due
			ON reminder_tasks (fire_at) WHERE status = 'pending';
	`

	_, err := pool.Exec(ctx, ddl)
	return err
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dob := gofakeit.DateRange(
				time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
			)

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (
					id, first_name, last_name, date_of_birth, phone, email,
					insurance_carrier, insurance_member_id, insurance_group_id,
					created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			`,
				uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), dob,
				gofakeit.Phone(), gofakeit.Email(),
				gofakeit.Company(), gofakeit.LetterN(2)+gofakeit.DigitN(7), gofakeit.DigitN(5),
			)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedSlots creates per-doctor daily schedules: hourly openings, weekdays
// only, starting tomorrow.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctors, days int) error {
	log.Printf("seeding slots for %d doctors over %d days", doctors, days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	firstDay := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour)

	total := 0
	for i := 0; i < doctors; i++ {
		doctorID := uuid.New()
		doctorName := "Dr. " + gofakeit.LastName()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		loc := locations[gofakeit.Number(0, len(locations)-1)]

		for d := 0; d < days; d++ {
			day := firstDay.AddDate(0, 0, d)
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}

			for hour := 9; hour < 17; hour++ {
				start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.Local)

				_, err := tx.Exec(ctx, `
					INSERT INTO slots (
						id, doctor_id, doctor_name, specialty, location_id, location_name,
						start_time, capacity_minutes, status, created_at, updated_at
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open', now(), now())
				`, uuid.New(), doctorID, doctorName, spec, loc.id, loc.name, start, 60)
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
