// Package token issues, verifies and rotates the access/refresh credential
// pair. Access tokens are short-lived signed JWTs and never touch the store;
// refresh tokens are opaque "id.secret" strings whose keyed digest is
// persisted per lineage so rotation and replay detection can be enforced.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/ids"
	"sitecraft.dev/cms/internal/user"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 24 * time.Hour
	defaultIssuer     = "sitecraft-cms"

	tokenTypeAccess = "access"
)

// Claims are the verified contents of an access token.
type Claims struct {
	Role      string   `json:"role"`
	Overrides []string `json:"overrides,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair bundles freshly issued credentials.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	LineageID        string
}

// Service signs access tokens and manages refresh-token lineages.
type Service struct {
	store Store
	users user.Store
	now   func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// Option configures Service behavior.
type Option func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// NewService constructs a Service. Access and refresh tokens are bound to
// separate secrets so one context can never stand in for the other.
func NewService(store Store, users user.Store, accessSecret, refreshSecret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("token: store is required")
	}
	if users == nil {
		return nil, errors.New("token: user store is required")
	}
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	svc := &Service{
		store:         store,
		users:         users,
		now:           time.Now,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Issue creates a fresh access/refresh pair rooted at a new lineage.
func (s *Service) Issue(ctx context.Context, u *user.User) (Pair, error) {
	now := s.now()
	lineage := ids.NewLineage()
	return s.mint(ctx, u, now, lineage, "")
}

func (s *Service) mint(ctx context.Context, u *user.User, now time.Time, lineageID, rotatedFrom string) (Pair, error) {
	access, accessExp, err := s.signAccess(u, now)
	if err != nil {
		return Pair{}, err
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return Pair{}, fmt.Errorf("token: generate refresh secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	rec := &RefreshToken{
		ID:          ids.New(),
		UserID:      u.ID,
		LineageID:   lineageID,
		TokenHash:   s.hashRefreshSecret(secret),
		RotatedFrom: rotatedFrom,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     rec.ID + "." + secret,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
		LineageID:        lineageID,
	}, nil
}

func (s *Service) signAccess(u *user.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	overrides := make([]string, 0, len(u.Overrides))
	for _, p := range u.Overrides {
		overrides = append(overrides, string(p))
	}
	claims := Claims{
		Role:      string(u.Role),
		Overrides: overrides,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token cryptographically and against the
// clock. No store lookup happens here; access tokens are stateless.
func (s *Service) VerifyAccess(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return s.accessSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalid
	}
	// The boundary instant counts as expired.
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	return claims, nil
}

// Principal builds the request principal carried by a verified access token.
func (c *Claims) Principal() authz.Principal {
	overrides := make([]authz.Permission, 0, len(c.Overrides))
	for _, o := range c.Overrides {
		overrides = append(overrides, authz.Permission(o))
	}
	return authz.UserPrincipal(c.Subject, authz.Role(c.Role), overrides)
}

// Refresh rotates the presented refresh token. Exactly one of two concurrent
// calls with the same token can win: the check-and-mark is a single
// conditional store write, and the loser lands on the replay path, which
// revokes the entire lineage.
func (s *Service) Refresh(ctx context.Context, presented string) (Pair, error) {
	id, secret, err := splitRefreshToken(presented)
	if err != nil {
		return Pair{}, ErrInvalid
	}
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Pair{}, ErrInvalid
		}
		return Pair{}, err
	}
	if !s.compareRefreshSecret(rec.TokenHash, secret) {
		return Pair{}, ErrInvalid
	}
	now := s.now()
	if !now.Before(rec.ExpiresAt) {
		return Pair{}, ErrExpired
	}
	if rec.RotatedAt != nil || rec.RevokedAt != nil {
		// Stale token replayed: assume theft, burn the lineage.
		if err := s.store.RevokeLineage(ctx, rec.LineageID, now); err != nil {
			return Pair{}, err
		}
		return Pair{}, &ReplayError{LineageID: rec.LineageID, UserID: rec.UserID}
	}

	rotated, err := s.store.MarkRotated(ctx, rec.ID, now)
	if err != nil {
		return Pair{}, err
	}
	if !rotated {
		// Lost the race against a concurrent refresh: same treatment as
		// an observed replay.
		if err := s.store.RevokeLineage(ctx, rec.LineageID, now); err != nil {
			return Pair{}, err
		}
		return Pair{}, &ReplayError{LineageID: rec.LineageID, UserID: rec.UserID}
	}

	u, err := s.users.Find(ctx, rec.UserID)
	if err != nil {
		return Pair{}, err
	}
	return s.mint(ctx, u, now, rec.LineageID, rec.ID)
}

// RevokeLineage revokes every token descending from one issuance.
func (s *Service) RevokeLineage(ctx context.Context, lineageID string) error {
	return s.store.RevokeLineage(ctx, lineageID, s.now())
}

// RevokeAllForUser revokes every lineage belonging to the user.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.store.RevokeByUser(ctx, userID, s.now())
}

// RevokePresented revokes the lineage of a presented refresh token. Used on
// logout; malformed or unknown tokens are not an error there.
func (s *Service) RevokePresented(ctx context.Context, presented string) error {
	id, secret, err := splitRefreshToken(presented)
	if err != nil {
		return nil
	}
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !s.compareRefreshSecret(rec.TokenHash, secret) {
		return nil
	}
	return s.store.RevokeLineage(ctx, rec.LineageID, s.now())
}

func (s *Service) hashRefreshSecret(secret string) string {
	mac := hmac.New(sha256.New, s.refreshSecret)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) compareRefreshSecret(expectedHash, secret string) bool {
	actual := s.hashRefreshSecret(secret)
	if len(actual) != len(expectedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}
