package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("prescription not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("only doctors can add prescriptions")
)

type Repository interface {
	// Create inserts p and stamps the patient's last visit in the same
	// transaction.
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}
