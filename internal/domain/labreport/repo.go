package labreport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("lab report not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("only doctors can upload lab reports")
	ErrTooLarge   = errors.New("file exceeds maximum allowed size")
)

type Repository interface {
	Create(ctx context.Context, r *LabReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabReport, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabReport, int, error)
}
