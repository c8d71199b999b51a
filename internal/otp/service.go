// Package otp implements the one-time-passcode flow gating account
// activation. A successful verification marks the user verified, consumes
// the code and hands the session straight to the token service, so callers
// see verification and session creation as one operation.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sitecraft.dev/cms/internal/ids"
	"sitecraft.dev/cms/internal/mail"
	"sitecraft.dev/cms/internal/obs"
	"sitecraft.dev/cms/internal/token"
	"sitecraft.dev/cms/internal/user"
)

const (
	defaultTTL    = 10 * time.Minute
	defaultDigits = 6

	tempPasswordLength   = 12
	tempPasswordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	// ErrExpired indicates the latest code's lifetime has elapsed. The
	// boundary instant counts as expired.
	ErrExpired = errors.New("otp: expired")
	// ErrInvalid indicates the presented code does not match the stored hash.
	ErrInvalid = errors.New("otp: invalid code")
)

// Service issues and verifies one-time passcodes.
type Service struct {
	store  Store
	users  user.Store
	tokens *token.Service
	mailer mail.Mailer
	now    func() time.Time
	ttl    time.Duration
	digits int
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTTL configures code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, users user.Store, tokens *token.Service, mailer mail.Mailer, opts ...Option) (*Service, error) {
	if store == nil || users == nil || tokens == nil || mailer == nil {
		return nil, errors.New("otp: store, users, tokens and mailer are required")
	}
	svc := &Service{
		store:  store,
		users:  users,
		tokens: tokens,
		mailer: mailer,
		now:    time.Now,
		ttl:    defaultTTL,
		digits: defaultDigits,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue generates a fresh code for the user, stores its hash and dispatches
// it through the mail collaborator. Previously issued rows are left in place;
// verification only consults the newest one. The plaintext code is returned
// for out-of-band delivery.
func (s *Service) Issue(ctx context.Context, userID string) (string, error) {
	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return "", err
	}

	code, err := generateCode(s.digits)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("otp: hash code: %w", err)
	}
	now := s.now()
	row := &OTP{
		ID:        ids.New(),
		UserID:    u.ID,
		CodeHash:  string(hash),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, row); err != nil {
		return "", err
	}

	if err := s.mailer.SendOTP(ctx, u, code); err != nil {
		obs.LogError("otp mail dispatch failed", map[string]any{"user_id": u.ID, "error": err.Error()})
	}
	return code, nil
}

// Verify checks the presented code against the user's latest OTP row. On
// success the row is consumed, the user is marked verified, a temporary
// password is generated and a session is issued. The welcome mail is
// best-effort: its failure never rolls back verification.
func (s *Service) Verify(ctx context.Context, userID, presented string) (token.Pair, error) {
	presented = strings.TrimSpace(presented)
	if userID == "" || presented == "" {
		return token.Pair{}, ErrInvalid
	}

	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return token.Pair{}, err
	}

	row, err := s.store.LatestByUser(ctx, u.ID)
	if err != nil {
		return token.Pair{}, err
	}
	if !s.now().Before(row.ExpiresAt) {
		return token.Pair{}, ErrExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.CodeHash), []byte(presented)); err != nil {
		return token.Pair{}, ErrInvalid
	}

	// Consume first: the conditional delete admits exactly one of any
	// concurrent verifications, so the writes below run at most once.
	if err := s.store.Consume(ctx, row.ID); err != nil {
		return token.Pair{}, err
	}
	if err := s.users.MarkVerified(ctx, u.ID); err != nil {
		return token.Pair{}, err
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return token.Pair{}, err
	}
	tempHash, err := user.HashPassword(tempPassword)
	if err != nil {
		return token.Pair{}, err
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, tempHash); err != nil {
		return token.Pair{}, err
	}

	if err := s.mailer.SendWelcome(ctx, u, tempPassword); err != nil {
		obs.LogError("welcome mail dispatch failed", map[string]any{"user_id": u.ID, "error": err.Error()})
	}

	u.Verified = true
	return s.tokens.Issue(ctx, u)
}

func generateCode(digits int) (string, error) {
	var sb strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("otp: generate code: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

func generateTempPassword() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := 0; i < tempPasswordLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("otp: generate temporary password: %w", err)
		}
		sb.WriteByte(tempPasswordAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
