package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p        Patient
		phone    *string
		email    *string
		carrier  *string
		memberID *string
		groupID  *string
	)

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.DateOfBirth,
		&phone,
		&email,
		&carrier,
		&memberID,
		&groupID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Phone = phone
	p.Email = email
	if carrier != nil {
		p.Insurance = &Insurance{Carrier: *carrier}
		if memberID != nil {
			p.Insurance.MemberID = *memberID
		}
		if groupID != nil {
			p.Insurance.GroupID = *groupID
		}
	}

	return &p, nil
}

const patientColumns = `
	id, first_name, last_name, date_of_birth, phone, email,
	insurance_carrier, insurance_member_id, insurance_group_id,
	created_at, updated_at
`

func (s *PgStore) Lookup(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE lower(first_name) = lower($1)
		  AND lower(last_name) = lower($2)
		  AND date_of_birth = $3
	`, firstName, lastName, dob)
	return scanPatient(row)
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) Upsert(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	var carrier, memberID, groupID *string
	if p.Insurance != nil {
		carrier = &p.Insurance.Carrier
		memberID = &p.Insurance.MemberID
		groupID = &p.Insurance.GroupID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (
			id, first_name, last_name, date_of_birth, phone, email,
			insurance_carrier, insurance_member_id, insurance_group_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			phone               = EXCLUDED.phone,
			email               = EXCLUDED.email,
			insurance_carrier   = EXCLUDED.insurance_carrier,
			insurance_member_id = EXCLUDED.insurance_member_id,
			insurance_group_id  = EXCLUDED.insurance_group_id,
			updated_at          = now()
	`, p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email, carrier, memberID, groupID)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}

	return nil
}
