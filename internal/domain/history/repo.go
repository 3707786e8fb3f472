package history

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, ev *Event) error
	ListByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]*Event, int, error)
}
