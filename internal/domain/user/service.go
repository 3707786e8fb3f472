package user

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/recordvault/recordvault/internal/platform/httperr"
)

type Service struct {
	users Repository
}

func NewService(users Repository) *Service {
	return &Service{users: users}
}

// CreateInput carries the role-selection payload.
type CreateInput struct {
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
	Username      string `json:"username"`
}

// Create registers the authenticated identity with a wallet, a role and a
// username. An identity registers exactly once; duplicates on any of the
// unique columns are conflicts.
func (s *Service) Create(ctx context.Context, identityID string, in CreateInput) (*User, error) {
	if identityID == "" {
		return nil, httperr.Validationf("identity is required")
	}
	wallet := strings.ToLower(strings.TrimSpace(in.WalletAddress))
	if wallet == "" {
		return nil, httperr.Validationf("wallet_address is required")
	}
	if !ValidRoles[in.Role] {
		return nil, httperr.Validationf("invalid role: %s", in.Role)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, httperr.Validationf("username is required")
	}

	if existing, err := s.users.GetByIdentity(ctx, identityID); err == nil && existing != nil {
		return nil, httperr.Conflictf("identity already registered as %s", existing.Role)
	} else if err != nil && !errors.Is(err, httperr.ErrNotFound) {
		return nil, err
	}

	u := &User{
		IdentityID:    identityID,
		WalletAddress: wallet,
		Role:          in.Role,
		Username:      username,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ByIdentity resolves the JWT subject to the registered user.
func (s *Service) ByIdentity(ctx context.Context, identityID string) (*User, error) {
	return s.users.GetByIdentity(ctx, identityID)
}

// ByWallet resolves a wallet address to the registered user.
func (s *Service) ByWallet(ctx context.Context, wallet string) (*User, error) {
	return s.users.GetByWallet(ctx, strings.ToLower(wallet))
}
