package patient

import (
	"time"

	"github.com/google/uuid"
)

// Category is the new-versus-returning determination driving appointment length.
type Category string

const (
	CategoryNew       Category = "new"
	CategoryReturning Category = "returning"
)

type Insurance struct {
	Carrier  string
	MemberID string
	GroupID  string
}

type Patient struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Phone       *string
	Email       *string
	Insurance   *Insurance
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
