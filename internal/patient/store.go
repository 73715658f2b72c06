package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrPatientNotFound = errors.New("patient not found")

// Store is the patient record collaborator. Lookup matches on full name plus
// date of birth, the identity the intake flow collects.
type Store interface {
	Lookup(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Upsert(ctx context.Context, p *Patient) error
}
