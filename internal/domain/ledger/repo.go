package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists access requests, their notifications, and the grant
// outbox. Status transitions are compare-and-swap: the update methods report
// whether the row actually moved, so concurrent approve/deny cannot both win.
type Repository interface {
	CreateRequest(ctx context.Context, req *AccessRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*AccessRequest, error)
	FindOpenRequest(ctx context.Context, recordID, organizationID uuid.UUID) (*AccessRequest, error)
	HasApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error)
	TransitionRequest(ctx context.Context, id uuid.UUID, to string, processedAt time.Time) (bool, error)
	DeleteRequest(ctx context.Context, id uuid.UUID) error
	DeleteApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error)
	ListRequestsByOrganization(ctx context.Context, organizationID uuid.UUID, status string, limit, offset int) ([]*AccessRequest, int, error)
	ListRequestsByOwner(ctx context.Context, ownerID uuid.UUID, status string, limit, offset int) ([]*AccessRequest, int, error)

	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error)
	TransitionNotification(ctx context.Context, id uuid.UUID, to string) (bool, error)
	ResolveNotificationsForRequest(ctx context.Context, requestID uuid.UUID, to string) error
	ListNotificationsByAddressee(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*Notification, int, error)

	EnqueueJob(ctx context.Context, job *GrantJob) error
	DueJobs(ctx context.Context, now time.Time, limit int) ([]*GrantJob, error)
	MarkJobSubmitted(ctx context.Context, id uuid.UUID, txHash string, nextAttemptAt time.Time) error
	MarkJobConfirmed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkJobFailed(ctx context.Context, id uuid.UUID, lastError string) error
	RescheduleJob(ctx context.Context, id uuid.UUID, lastError string, attempts int, nextAttemptAt time.Time) error
	ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*GrantJob, int, error)
}
