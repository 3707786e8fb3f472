package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Request and notification lifecycle. A row leaves pending exactly once.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// AccessRequest maps to the access_requests table. A partial unique index
// keeps at most one pending request per (record, organization) pair.
type AccessRequest struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	RecordID       uuid.UUID  `db:"record_id" json:"record_id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Status         string     `db:"status" json:"status"`
	RequestedAt    time.Time  `db:"requested_at" json:"requested_at"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// Notification maps to the notifications table. It is always paired to an
// access request through RequestID; the addressee is the record owner.
type Notification struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RecordID       uuid.UUID `db:"record_id" json:"record_id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	RequestID      uuid.UUID `db:"request_id" json:"request_id"`
	Message        string    `db:"message" json:"message"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Outbox operations and states.
const (
	OpGrant  = "grant"
	OpRevoke = "revoke"

	JobPending   = "pending"
	JobSubmitted = "submitted"
	JobConfirmed = "confirmed"
	JobFailed    = "failed"
)

// GrantJob maps to the grant_outbox table. Rows are enqueued in the same
// transaction as the approval (or revocation) they result from, so a grant
// is never lost between the ledger and the chain.
type GrantJob struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RecordID       uuid.UUID `db:"record_id" json:"record_id"`
	TokenID        string    `db:"token_id" json:"token_id"`
	GranteeAddress string    `db:"grantee_address" json:"grantee_address"`
	Op             string    `db:"op" json:"op"`
	Status         string    `db:"status" json:"status"`
	Attempts       int       `db:"attempts" json:"attempts"`
	NextAttemptAt  time.Time `db:"next_attempt_at" json:"next_attempt_at"`
	TxHash         string    `db:"tx_hash" json:"tx_hash,omitempty"`
	LastError      string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
