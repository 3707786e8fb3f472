package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recordvault/recordvault/internal/platform/httperr"
)

type mockHistoryRepo struct {
	events []*Event
}

func (m *mockHistoryRepo) Create(ctx context.Context, ev *Event) error {
	ev.ID = uuid.New()
	ev.PerformedAt = time.Now().UTC()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockHistoryRepo) ListByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]*Event, int, error) {
	var items []*Event
	for _, ev := range m.events {
		if ev.UserID == userID && ev.EventType == eventType {
			items = append(items, ev)
		}
	}
	return items, len(items), nil
}

func TestRecord_WriteRequiresTxHash(t *testing.T) {
	svc := NewService(&mockHistoryRepo{})
	err := svc.Record(context.Background(), uuid.New(), EventWrite, "  ", "granted")
	if !errors.Is(err, httperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRecord_UnknownType(t *testing.T) {
	svc := NewService(&mockHistoryRepo{})
	err := svc.Record(context.Background(), uuid.New(), "delete", "", "x")
	if !errors.Is(err, httperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRecordReadAndList(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewService(repo)
	userID := uuid.New()

	if err := svc.RecordRead(context.Background(), userID, "read record 42"); err != nil {
		t.Fatalf("record read: %v", err)
	}

	items, total, err := svc.List(context.Background(), userID, EventRead, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected one event, got total=%d len=%d", total, len(items))
	}
	if items[0].TxHash != "" {
		t.Errorf("read event must not carry a tx hash, got %q", items[0].TxHash)
	}
}

func TestRecordWriteCarriesTxHash(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewService(repo)
	userID := uuid.New()

	if err := svc.RecordWrite(context.Background(), userID, "0xabc", "granted"); err != nil {
		t.Fatalf("record write: %v", err)
	}
	items, _, err := svc.List(context.Background(), userID, EventWrite, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items[0].TxHash != "0xabc" {
		t.Errorf("expected tx hash on write event, got %q", items[0].TxHash)
	}
}

func TestList_EmptyIsNotFound(t *testing.T) {
	svc := NewService(&mockHistoryRepo{})
	_, _, err := svc.List(context.Background(), uuid.New(), EventRead, 20, 0)
	if !errors.Is(err, httperr.ErrNotFound) {
		t.Errorf("expected not found for empty page, got %v", err)
	}
}

func TestList_TypesAreSeparate(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewService(repo)
	userID := uuid.New()

	if err := svc.RecordWrite(context.Background(), userID, "0xabc", "granted"); err != nil {
		t.Fatalf("record write: %v", err)
	}
	_, _, err := svc.List(context.Background(), userID, EventRead, 20, 0)
	if !errors.Is(err, httperr.ErrNotFound) {
		t.Errorf("expected not found for read list, got %v", err)
	}
}
