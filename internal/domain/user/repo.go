package user

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIdentity(ctx context.Context, identityID string) (*User, error)
	GetByWallet(ctx context.Context, wallet string) (*User, error)
}
