package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, rec *MedicalRecord) error
	GetByTokenID(ctx context.Context, tokenID string) (*MedicalRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
}
