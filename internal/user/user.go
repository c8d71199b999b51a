// Package user defines the account model consumed by the authorization and
// session subsystem. The CRUD surface for accounts lives elsewhere; this
// package only carries what credential resolution and verification need.
package user

import (
	"context"
	"errors"
	"time"

	"sitecraft.dev/cms/internal/authz"
)

var ErrNotFound = errors.New("user: not found")

// User is an account row as seen by the auth core.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         authz.Role
	// Overrides are explicit per-user permission grants on top of the role.
	Overrides []authz.Permission
	Verified  bool
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the narrow persistence interface the auth core consumes.
type Store interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	MarkVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}
