package token

import (
	"context"
	"time"
)

// RefreshToken is the persisted side of an opaque refresh credential. Only
// a keyed digest of the secret half is stored; the raw value never touches
// the database. LineageID ties together the chain of rotations descending
// from one original issuance.
type RefreshToken struct {
	ID          string
	UserID      string
	LineageID   string
	TokenHash   string
	RotatedFrom string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RotatedAt   *time.Time
	RevokedAt   *time.Time
}

// Store persists refresh tokens. MarkRotated is the linearization point for
// rotation: it must be a single conditional write that succeeds for exactly
// one caller per token, so concurrent refreshes cannot both win.
type Store interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// MarkRotated flips the rotation flag if and only if the token is still
	// active. It reports false, nil when another caller got there first or
	// the token was already revoked.
	MarkRotated(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeLineage(ctx context.Context, lineageID string, at time.Time) error
	RevokeByUser(ctx context.Context, userID string, at time.Time) error
}
