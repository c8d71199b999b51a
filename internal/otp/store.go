package otp

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no OTP row exists for a user — either none was
// ever issued or the last one was consumed by a successful verification.
var ErrNotFound = errors.New("otp: not found")

// OTP is a persisted one-time passcode. Only the bcrypt hash of the code is
// stored. Expired rows are not purged eagerly; expiry is checked on
// verification.
type OTP struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists OTP rows. Multiple historical rows per user may exist;
// verification only ever consults the most recently issued one.
type Store interface {
	Create(ctx context.Context, row *OTP) error
	LatestByUser(ctx context.Context, userID string) (*OTP, error)
	// Consume invalidates the row. It must be a single conditional write
	// that returns ErrNotFound when the row was already consumed, so that
	// exactly one of any concurrent verifications can succeed.
	Consume(ctx context.Context, id string) error
}
