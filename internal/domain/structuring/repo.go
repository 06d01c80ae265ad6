package structuring

import (
	"context"

	"github.com/google/uuid"
)

type AILogRepository interface {
	Create(ctx context.Context, l *AILog) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*AILog, int, error)
}
