package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can pick at registration. Record owners tokenize and share
// records; organizations request access to them.
const (
	RoleOwner        = "owner"
	RoleOrganization = "organization"
)

// ValidRoles enumerates the accepted role values.
var ValidRoles = map[string]bool{
	RoleOwner:        true,
	RoleOrganization: true,
}

// User maps to the users table. A row is created once, when the
// authenticated identity picks a role; wallet and role never change
// afterwards.
type User struct {
	ID            uuid.UUID `db:"id" json:"id"`
	IdentityID    string    `db:"identity_id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	Role          string    `db:"role" json:"role"`
	Username      string    `db:"username" json:"username"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IsOwner reports whether the user registered as a record owner.
func (u *User) IsOwner() bool { return u.Role == RoleOwner }

// IsOrganization reports whether the user registered as an organization.
func (u *User) IsOrganization() bool { return u.Role == RoleOrganization }
