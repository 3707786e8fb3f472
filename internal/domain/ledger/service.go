package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/httperr"
)

// RecordInfo is the slice of a medical record the ledger needs: identity,
// ownership, and the on-chain token.
type RecordInfo struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	TokenID string
}

// RecordDirectory resolves records without pulling in their content keys.
type RecordDirectory interface {
	ByTokenID(ctx context.Context, tokenID string) (*RecordInfo, error)
	ByID(ctx context.Context, id uuid.UUID) (*RecordInfo, error)
}

// UserDirectory resolves users for grantee address lookups.
type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	ByWallet(ctx context.Context, address string) (*user.User, error)
}

// TxRunner runs fn inside a database transaction. The approve path uses it
// so the status flip and the outbox row commit or roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo    Repository
	records RecordDirectory
	users   UserDirectory
	tx      TxRunner
	logger  zerolog.Logger
}

func NewService(repo Repository, records RecordDirectory, users UserDirectory,
	tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, records: records, users: users, tx: tx, logger: logger}
}

// CreateRequest opens a pending access request from an organization against
// a token. Unknown tokens are a 404, a second open request a 409.
func (s *Service) CreateRequest(ctx context.Context, caller *user.User, tokenID string) (*AccessRequest, error) {
	if !caller.IsOrganization() {
		return nil, httperr.Validationf("only organizations can request access")
	}
	if strings.TrimSpace(tokenID) == "" {
		return nil, httperr.Validationf("token_id is required")
	}

	rec, err := s.records.ByTokenID(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return nil, err
	}

	req := &AccessRequest{RecordID: rec.ID, OrganizationID: caller.ID}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// CreateNotification notifies the record owner about the caller's open
// request. The pairing is mandatory: without an open request there is
// nothing to approve, so the create is a 404.
func (s *Service) CreateNotification(ctx context.Context, caller *user.User, tokenID, message string) (*Notification, error) {
	if !caller.IsOrganization() {
		return nil, httperr.Validationf("only organizations can send notifications")
	}

	rec, err := s.records.ByTokenID(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return nil, err
	}
	req, err := s.repo.FindOpenRequest(ctx, rec.ID, caller.ID)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		RecordID:       rec.ID,
		OrganizationID: caller.ID,
		UserID:         rec.OwnerID,
		RequestID:      req.ID,
		Message:        message,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Approve resolves a notification in the addressee's favor. The notification
// flip, the request flip, and the grant outbox row are one transaction; the
// chain itself is never touched here.
func (s *Service) Approve(ctx context.Context, caller *user.User, notificationID uuid.UUID) (*Notification, error) {
	return s.resolve(ctx, caller, notificationID, StatusApproved)
}

// Deny resolves a notification against the requester. No outbox row, no
// chain interaction, ever.
func (s *Service) Deny(ctx context.Context, caller *user.User, notificationID uuid.UUID) (*Notification, error) {
	return s.resolve(ctx, caller, notificationID, StatusDenied)
}

func (s *Service) resolve(ctx context.Context, caller *user.User, notificationID uuid.UUID, to string) (*Notification, error) {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	// Not the addressee: pretend it does not exist.
	if n.UserID != caller.ID {
		return nil, httperr.NotFoundf("notification not found")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		moved, err := s.repo.TransitionNotification(ctx, n.ID, to)
		if err != nil {
			return err
		}
		if !moved {
			return httperr.Conflictf("notification already resolved")
		}
		moved, err = s.repo.TransitionRequest(ctx, n.RequestID, to, time.Now().UTC())
		if err != nil {
			return err
		}
		if !moved {
			return httperr.Conflictf("access request already resolved")
		}
		if to == StatusApproved {
			return s.enqueueForRequest(ctx, n.RecordID, n.OrganizationID, OpGrant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.Status = to
	return n, nil
}

// ResolveRequest is the request-side resolution used by PATCH on the
// request itself. Only the record owner may resolve; any pending
// notification paired to the request is resolved with it.
func (s *Service) ResolveRequest(ctx context.Context, caller *user.User, requestID uuid.UUID, to string) (*AccessRequest, error) {
	if to != StatusApproved && to != StatusDenied {
		return nil, httperr.Validationf("status must be approved or denied")
	}

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.ByID(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != caller.ID {
		return nil, httperr.NotFoundf("access request not found")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		moved, err := s.repo.TransitionRequest(ctx, req.ID, to, time.Now().UTC())
		if err != nil {
			return err
		}
		if !moved {
			return httperr.Conflictf("access request already resolved")
		}
		if err := s.repo.ResolveNotificationsForRequest(ctx, req.ID, to); err != nil {
			return err
		}
		if to == StatusApproved {
			return s.enqueueForRequest(ctx, req.RecordID, req.OrganizationID, OpGrant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req.Status = to
	return req, nil
}

// enqueueForRequest resolves the grantee's wallet and writes the outbox row.
// Runs inside the caller's transaction.
func (s *Service) enqueueForRequest(ctx context.Context, recordID, organizationID uuid.UUID, op string) error {
	rec, err := s.records.ByID(ctx, recordID)
	if err != nil {
		return err
	}
	org, err := s.users.Get(ctx, organizationID)
	if err != nil {
		return err
	}
	return s.repo.EnqueueJob(ctx, &GrantJob{
		RecordID:       rec.ID,
		TokenID:        rec.TokenID,
		GranteeAddress: org.WalletAddress,
		Op:             op,
	})
}

// DeleteRequest removes a request outright. Visible only to the requesting
// organization and the record owner.
func (s *Service) DeleteRequest(ctx context.Context, caller *user.User, requestID uuid.UUID) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.OrganizationID != caller.ID {
		rec, err := s.records.ByID(ctx, req.RecordID)
		if err != nil {
			return err
		}
		if rec.OwnerID != caller.ID {
			return httperr.NotFoundf("access request not found")
		}
	}
	return s.repo.DeleteRequest(ctx, requestID)
}

// Revoke withdraws a previously approved grant: the approved request row is
// deleted and a revoke outbox row is enqueued in one transaction. Owner only.
func (s *Service) Revoke(ctx context.Context, caller *user.User, tokenID, granteeAddress string) error {
	rec, err := s.records.ByTokenID(ctx, tokenID)
	if err != nil {
		return err
	}
	if rec.OwnerID != caller.ID {
		return httperr.NotFoundf("record not found")
	}

	addr := strings.ToLower(strings.TrimSpace(granteeAddress))
	if addr == "" {
		return httperr.Validationf("grantee address is required")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// The grantee may hold a chain grant without a ledger row, so a
		// missing request is not an error.
		grantee, err := s.users.ByWallet(ctx, addr)
		if err == nil {
			if _, err := s.repo.DeleteApprovedRequest(ctx, rec.ID, grantee.ID); err != nil {
				return err
			}
		} else if !isNotFound(err) {
			return err
		}

		return s.repo.EnqueueJob(ctx, &GrantJob{
			RecordID:       rec.ID,
			TokenID:        rec.TokenID,
			GranteeAddress: addr,
			Op:             OpRevoke,
		})
	})
}

// HasApprovedRequest reports whether the organization holds an approved
// request for the record. Consumed by the record registry's access check.
func (s *Service) HasApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error) {
	return s.repo.HasApprovedRequest(ctx, recordID, organizationID)
}

// ListRequests pages the caller's view of the request ledger: organizations
// see the requests they made, owners see requests against their records.
func (s *Service) ListRequests(ctx context.Context, caller *user.User, status string, limit, offset int) ([]*AccessRequest, int, error) {
	if status != "" && status != StatusPending && status != StatusApproved && status != StatusDenied {
		return nil, 0, httperr.Validationf("unknown status %q", status)
	}
	if caller.IsOrganization() {
		return s.repo.ListRequestsByOrganization(ctx, caller.ID, status, limit, offset)
	}
	return s.repo.ListRequestsByOwner(ctx, caller.ID, status, limit, offset)
}

func (s *Service) ListNotifications(ctx context.Context, caller *user.User, status string, limit, offset int) ([]*Notification, int, error) {
	if status != "" && status != StatusPending && status != StatusApproved && status != StatusDenied {
		return nil, 0, httperr.Validationf("unknown status %q", status)
	}
	return s.repo.ListNotificationsByAddressee(ctx, caller.ID, status, limit, offset)
}

// ListGrantJobs pages the outbox rows for the caller's records so clients
// can see tx hashes and eventual failures.
func (s *Service) ListGrantJobs(ctx context.Context, caller *user.User, limit, offset int) ([]*GrantJob, int, error) {
	return s.repo.ListJobsByOwner(ctx, caller.ID, limit, offset)
}

func isNotFound(err error) bool {
	return errors.Is(err, httperr.ErrNotFound)
}
