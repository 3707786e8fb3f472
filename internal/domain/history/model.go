package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventRead  = "read"
	EventWrite = "write"
)

// Event maps to the history_events table. Write events always carry the
// confirmed chain tx hash; a DB constraint backs the service-level check.
type Event struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	TxHash      string    `db:"tx_hash" json:"tx_hash,omitempty"`
	Comments    string    `db:"comments" json:"comments"`
	PerformedAt time.Time `db:"performed_at" json:"performed_at"`
}
