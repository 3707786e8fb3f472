package record

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord maps to the medical_records table. The row is immutable: a
// tokenized record is never edited, only read or burned with its owner.
// KeyEnvelope holds the content key sealed by the key vault and never leaves
// the service; EncryptionKey is populated transiently on authorized reads.
type MedicalRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OwnerID       uuid.UUID `db:"owner_id" json:"owner_id"`
	TokenID       string    `db:"token_id" json:"token_id"`
	KeyEnvelope   string    `db:"key_envelope" json:"-"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	CID           string    `db:"cid" json:"cid"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	EncryptionKey string    `db:"-" json:"encryption_key,omitempty"`
}
