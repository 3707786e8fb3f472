package access

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/httperr"
)

// Gate is the confirmed on-chain view of who may read a token.
type Gate interface {
	HasAccess(ctx context.Context, tokenID, address string) (bool, error)
}

// DecisionCache caches gate answers for a short TTL.
type DecisionCache interface {
	Get(ctx context.Context, tokenID, address string) (hasAccess, found bool)
	Set(ctx context.Context, tokenID, address string, hasAccess bool)
}

// Revoker withdraws a grant through the request ledger, so the ledger row
// and the revoke outbox entry stay consistent.
type Revoker interface {
	Revoke(ctx context.Context, caller *user.User, tokenID, granteeAddress string) error
}

type Service struct {
	gate    Gate
	cache   DecisionCache
	revoker Revoker
	logger  zerolog.Logger
}

func NewService(gate Gate, cache DecisionCache, revoker Revoker, logger zerolog.Logger) *Service {
	return &Service{gate: gate, cache: cache, revoker: revoker, logger: logger}
}

// HasAccess answers whether the address may read the token, consulting the
// cache before the chain gateway.
func (s *Service) HasAccess(ctx context.Context, tokenID, address string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	addr := strings.ToLower(strings.TrimSpace(address))
	if tokenID == "" || addr == "" {
		return false, httperr.Validationf("token_id and address are required")
	}

	if s.cache != nil {
		if hasAccess, found := s.cache.Get(ctx, tokenID, addr); found {
			return hasAccess, nil
		}
	}

	hasAccess, err := s.gate.HasAccess(ctx, tokenID, addr)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, tokenID, addr, hasAccess)
	}
	return hasAccess, nil
}

// Revoke withdraws the grantee's access to the caller's record.
func (s *Service) Revoke(ctx context.Context, caller *user.User, tokenID, granteeAddress string) error {
	return s.revoker.Revoke(ctx, caller, tokenID, granteeAddress)
}
