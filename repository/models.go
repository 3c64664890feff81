package repository

import (
	"time"

	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-workspace-auth"
)

// PrincipalRecord is the local copy of an identity verified by the identity
// provider. ID is the provider's subject identifier.
type PrincipalRecord struct {
	bun.BaseModel `bun:"table:principals,alias:prn"`
	ID            string    `bun:"id,pk" json:"id"`
	Email         string    `bun:"email,notnull" json:"email"`
	DisplayName   string    `bun:"display_name" json:"display_name,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	LastLoginAt   time.Time `bun:"last_login_at,notnull" json:"last_login_at"`
}

// Principal returns the session identity for the record
func (p PrincipalRecord) Principal() auth.Principal {
	return auth.Principal{
		ID:    p.ID,
		Email: p.Email,
		Name:  p.DisplayName,
	}
}
