// Package apikey resolves machine credentials. Keys are opaque strings;
// only a sha256 digest is stored, alongside the key's fixed permission set.
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"sitecraft.dev/cms/internal/authz"
)

var ErrNotFound = errors.New("apikey: not found")

// Key is a stored machine credential.
type Key struct {
	ID          string
	Name        string
	KeyHash     string
	Permissions []authz.Permission
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// Store looks up keys by digest. Revoked keys must not be returned.
type Store interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

// Hash digests a presented raw key for lookup.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
