package record

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/httperr"
)

// KeySealer wraps and unwraps record content keys.
type KeySealer interface {
	Seal(key string) (string, error)
	Open(envelope string) (string, error)
}

// Pinner pins record content so the gateway keeps it available.
type Pinner interface {
	Pin(ctx context.Context, cid string) error
}

// AccessChecker answers whether an address currently holds on-chain access
// to a token.
type AccessChecker interface {
	HasAccess(ctx context.Context, tokenID, address string) (bool, error)
}

// ApprovalChecker answers whether the organization holds an approved access
// request for the record.
type ApprovalChecker interface {
	HasApprovedRequest(ctx context.Context, recordID, organizationID uuid.UUID) (bool, error)
}

// ReadRecorder appends a read event to the caller's history.
type ReadRecorder interface {
	RecordRead(ctx context.Context, userID uuid.UUID, comments string) error
}

type Service struct {
	records   Repository
	sealer    KeySealer
	pinner    Pinner
	gate      AccessChecker
	approvals ApprovalChecker
	history   ReadRecorder
	logger    zerolog.Logger
}

func NewService(records Repository, sealer KeySealer, pinner Pinner,
	gate AccessChecker, approvals ApprovalChecker, history ReadRecorder,
	logger zerolog.Logger) *Service {
	return &Service{
		records:   records,
		sealer:    sealer,
		pinner:    pinner,
		gate:      gate,
		approvals: approvals,
		history:   history,
		logger:    logger,
	}
}

// CreateInput carries the tokenization payload. The content itself is already
// on IPFS; the vault stores metadata and the sealed content key.
type CreateInput struct {
	TokenID       string `json:"token_id"`
	EncryptionKey string `json:"encryption_key"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CID           string `json:"cid"`
}

// Create registers a tokenized record for the caller. The content key is
// sealed before it touches the database. Pinning is best effort: a pin
// failure is logged, never surfaced.
func (s *Service) Create(ctx context.Context, caller *user.User, in CreateInput) (*MedicalRecord, error) {
	if !caller.IsOwner() {
		return nil, httperr.Validationf("only record owners can register records")
	}
	if strings.TrimSpace(in.TokenID) == "" {
		return nil, httperr.Validationf("token_id is required")
	}
	if in.EncryptionKey == "" {
		return nil, httperr.Validationf("encryption_key is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, httperr.Validationf("title is required")
	}
	if strings.TrimSpace(in.CID) == "" {
		return nil, httperr.Validationf("cid is required")
	}

	envelope, err := s.sealer.Seal(in.EncryptionKey)
	if err != nil {
		return nil, err
	}

	rec := &MedicalRecord{
		OwnerID:     caller.ID,
		TokenID:     strings.TrimSpace(in.TokenID),
		KeyEnvelope: envelope,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CID:         strings.TrimSpace(in.CID),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	if s.pinner != nil {
		if err := s.pinner.Pin(ctx, rec.CID); err != nil {
			s.logger.Warn().Err(err).
				Str("token_id", rec.TokenID).
				Str("cid", rec.CID).
				Msg("pin failed, content relies on uploader's node")
		}
	}

	return rec, nil
}

// Get returns the record with its unwrapped content key when the caller is
// the owner or currently holds access. Anyone else gets a not-found, so the
// existence of a token never leaks.
func (s *Service) Get(ctx context.Context, caller *user.User, tokenID string) (*MedicalRecord, error) {
	rec, err := s.records.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if rec.OwnerID != caller.ID {
		allowed, err := s.callerHasAccess(ctx, caller, rec)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, httperr.NotFoundf("record not found")
		}
	}

	key, err := s.sealer.Open(rec.KeyEnvelope)
	if err != nil {
		return nil, err
	}
	rec.EncryptionKey = key

	if rec.OwnerID != caller.ID && s.history != nil {
		if err := s.history.RecordRead(ctx, caller.ID, "read record "+rec.TokenID); err != nil {
			s.logger.Error().Err(err).
				Str("token_id", rec.TokenID).
				Msg("failed to append read history event")
		}
	}

	return rec, nil
}

// callerHasAccess consults the approved-request ledger first and falls back
// to the contract's confirmed view. Either source grants access.
func (s *Service) callerHasAccess(ctx context.Context, caller *user.User, rec *MedicalRecord) (bool, error) {
	if s.approvals != nil {
		approved, err := s.approvals.HasApprovedRequest(ctx, rec.ID, caller.ID)
		if err != nil {
			return false, err
		}
		if approved {
			return true, nil
		}
	}
	if s.gate != nil && caller.WalletAddress != "" {
		return s.gate.HasAccess(ctx, rec.TokenID, caller.WalletAddress)
	}
	return false, nil
}

// List returns the caller's own records, paginated.
func (s *Service) List(ctx context.Context, caller *user.User, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.records.ListByOwner(ctx, caller.ID, limit, offset)
}

// ByTokenID resolves a token to its record without any access decision.
// Intended for other domains, not for handlers.
func (s *Service) ByTokenID(ctx context.Context, tokenID string) (*MedicalRecord, error) {
	return s.records.GetByTokenID(ctx, tokenID)
}

// OwnerOf resolves a record id to its owning user id.
func (s *Service) OwnerOf(ctx context.Context, recordID uuid.UUID) (uuid.UUID, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return uuid.Nil, err
	}
	return rec.OwnerID, nil
}
