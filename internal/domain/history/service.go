package history

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/recordvault/recordvault/internal/platform/httperr"
)

// Service is the audit journal for record activity. Read events come from
// the record registry, write events from the grant reconciler once a chain
// transaction is confirmed.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends an event. A write without a tx hash is rejected here and
// by the table's CHECK constraint.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, eventType, txHash, comments string) error {
	if eventType != EventRead && eventType != EventWrite {
		return httperr.Validationf("unknown event type %q", eventType)
	}
	if eventType == EventWrite && strings.TrimSpace(txHash) == "" {
		return httperr.Validationf("write events require a tx hash")
	}
	return s.repo.Create(ctx, &Event{
		UserID:    userID,
		EventType: eventType,
		TxHash:    txHash,
		Comments:  comments,
	})
}

// RecordRead appends a read event.
func (s *Service) RecordRead(ctx context.Context, userID uuid.UUID, comments string) error {
	return s.Record(ctx, userID, EventRead, "", comments)
}

// RecordWrite appends a write event carrying its confirmed tx hash.
func (s *Service) RecordWrite(ctx context.Context, userID uuid.UUID, txHash, comments string) error {
	return s.Record(ctx, userID, EventWrite, txHash, comments)
}

// List pages the caller's events of one type. An empty page is a 404, which
// is what the upstream clients expect.
func (s *Service) List(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]*Event, int, error) {
	if eventType != EventRead && eventType != EventWrite {
		return nil, 0, httperr.Validationf("unknown event type %q", eventType)
	}
	items, total, err := s.repo.ListByUser(ctx, userID, eventType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		return nil, 0, httperr.NotFoundf("no %s events", eventType)
	}
	return items, total, nil
}
