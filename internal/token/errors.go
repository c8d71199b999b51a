package token

import "errors"

var (
	// ErrNotFound is returned by stores for unknown refresh token ids.
	ErrNotFound = errors.New("token: refresh token not found")
	// ErrInvalid indicates a malformed token or a failed signature check.
	ErrInvalid = errors.New("token: invalid")
	// ErrExpired indicates the token's lifetime has elapsed. The boundary
	// instant counts as expired.
	ErrExpired = errors.New("token: expired")
	// ErrReplayDetected indicates a refresh token that was already rotated
	// away was presented again. The whole lineage is revoked before this
	// error surfaces.
	ErrReplayDetected = errors.New("token: refresh token replay detected")
)

// ReplayError identifies the lineage and subject a replayed refresh token
// belonged to, so audit trails can name what was burned. It matches
// ErrReplayDetected under errors.Is.
type ReplayError struct {
	LineageID string
	UserID    string
}

func (e *ReplayError) Error() string {
	return ErrReplayDetected.Error()
}

func (e *ReplayError) Unwrap() error {
	return ErrReplayDetected
}
