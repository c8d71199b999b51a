package otp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/token"
	"sitecraft.dev/cms/internal/user"
)

type memOTPStore struct {
	mu   sync.Mutex
	rows map[string]*OTP
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{rows: map[string]*OTP{}}
}

func (m *memOTPStore) Create(_ context.Context, row *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[row.ID] = &cp
	return nil
}

func (m *memOTPStore) LatestByUser(_ context.Context, userID string) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*OTP
	for _, row := range m.rows {
		if row.UserID == userID {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	cp := *matches[0]
	return &cp, nil
}

func (m *memOTPStore) Consume(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUsers(users ...*user.User) *memUsers {
	m := &memUsers{users: map[string]*user.User{}}
	for _, u := range users {
		cp := *u
		m.users[u.ID] = &cp
	}
	return m
}

func (m *memUsers) Find(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Verified = true
	return nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) get(id string) *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.users[id]
	return &cp
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*token.RefreshToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: map[string]*token.RefreshToken{}}
}

func (m *memTokenStore) Create(_ context.Context, rec *token.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.tokens[rec.ID] = &cp
	return nil
}

func (m *memTokenStore) Find(_ context.Context, id string) (*token.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok {
		return nil, token.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memTokenStore) MarkRotated(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok || rec.RotatedAt != nil || rec.RevokedAt != nil {
		return false, nil
	}
	t := at
	rec.RotatedAt = &t
	return true, nil
}

func (m *memTokenStore) RevokeLineage(_ context.Context, lineageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tokens {
		if rec.LineageID == lineageID && rec.RevokedAt == nil {
			t := at
			rec.RevokedAt = &t
		}
	}
	return nil
}

func (m *memTokenStore) RevokeByUser(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil {
			t := at
			rec.RevokedAt = &t
		}
	}
	return nil
}

type recordingMailer struct {
	mu        sync.Mutex
	otpCodes  []string
	welcomes  []string
	otpErr    error
	sendError error
}

func (m *recordingMailer) SendOTP(_ context.Context, _ *user.User, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otpCodes = append(m.otpCodes, code)
	return m.otpErr
}

func (m *recordingMailer) SendWelcome(_ context.Context, _ *user.User, tempPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, tempPassword)
	return m.sendError
}

type fixture struct {
	svc    *Service
	users  *memUsers
	store  *memOTPStore
	mailer *recordingMailer
	now    *time.Time
}

func newFixture(t *testing.T, u *user.User) *fixture {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base

	users := newMemUsers(u)
	clock := func() time.Time { return now }
	tokens, err := token.NewService(newMemTokenStore(), users, "access-secret", "refresh-secret",
		token.WithClock(clock))
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}

	store := newMemOTPStore()
	mailer := &recordingMailer{}
	svc, err := NewService(store, users, tokens, mailer, WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, users: users, store: store, mailer: mailer, now: &now}
}

func pendingUser() *user.User {
	return &user.User{
		ID:     "user-1",
		Email:  "new@example.com",
		Role:   authz.RoleUser,
		Active: true,
	}
}

func TestIssueStoresHashNotCode(t *testing.T) {
	f := newFixture(t, pendingUser())

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("code %q contains non-digit", code)
		}
	}

	row, err := f.store.LatestByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LatestByUser: %v", err)
	}
	if row.CodeHash == code {
		t.Fatalf("plaintext code must not be stored")
	}
	if len(f.mailer.otpCodes) != 1 || f.mailer.otpCodes[0] != code {
		t.Fatalf("code should be dispatched via mail")
	}
}

func TestIssueUnknownUser(t *testing.T) {
	f := newFixture(t, pendingUser())
	if _, err := f.svc.Issue(context.Background(), "ghost"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}
}

func TestVerifyActivatesAndIssuesSession(t *testing.T) {
	f := newFixture(t, pendingUser())

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	pair, err := f.svc.Verify(context.Background(), "user-1", code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected a full session pair")
	}

	u := f.users.get("user-1")
	if !u.Verified {
		t.Fatalf("user should be marked verified")
	}
	if u.PasswordHash == "" {
		t.Fatalf("temporary password hash should be stored")
	}
	if len(f.mailer.welcomes) != 1 {
		t.Fatalf("welcome mail should be dispatched once")
	}
	if temp := f.mailer.welcomes[0]; user.VerifyPassword(u.PasswordHash, temp) != nil {
		t.Fatalf("stored hash should match the mailed temporary password")
	}

	// The code is consumed: a second attempt has nothing to check against.
	if _, err := f.svc.Verify(context.Background(), "user-1", code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after consumption, got %v", err)
	}
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	f := newFixture(t, pendingUser())

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const attempts = 8
	errs := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := f.svc.Verify(context.Background(), "user-1", code)
			errs <- err
		}()
	}
	start.Done()

	wins := 0
	for i := 0; i < attempts; i++ {
		err := <-errs
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotFound):
			// Lost the consume race against the winner.
		default:
			t.Fatalf("unexpected verify error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning verification, got %d", wins)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t, pendingUser())

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := f.svc.Verify(context.Background(), "user-1", wrong); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	// The row survives a failed attempt.
	if _, err := f.svc.Verify(context.Background(), "user-1", code); err != nil {
		t.Fatalf("correct code should still verify: %v", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	f := newFixture(t, pendingUser())

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	row, err := f.store.LatestByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LatestByUser: %v", err)
	}

	// The boundary instant counts as expired.
	*f.now = row.ExpiresAt
	if _, err := f.svc.Verify(context.Background(), "user-1", code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at boundary, got %v", err)
	}
}

func TestVerifyChecksLatestRowOnly(t *testing.T) {
	f := newFixture(t, pendingUser())

	first, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	*f.now = f.now.Add(time.Minute)
	second, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if first != second {
		if _, err := f.svc.Verify(context.Background(), "user-1", first); !errors.Is(err, ErrInvalid) {
			t.Fatalf("superseded code should be invalid, got %v", err)
		}
	}
	if _, err := f.svc.Verify(context.Background(), "user-1", second); err != nil {
		t.Fatalf("latest code should verify: %v", err)
	}
}

func TestVerifyUnknownUser(t *testing.T) {
	f := newFixture(t, pendingUser())
	if _, err := f.svc.Verify(context.Background(), "ghost", "123456"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}
}

func TestVerifyNoPendingCode(t *testing.T) {
	f := newFixture(t, pendingUser())
	if _, err := f.svc.Verify(context.Background(), "user-1", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyBlankInputs(t *testing.T) {
	f := newFixture(t, pendingUser())
	if _, err := f.svc.Verify(context.Background(), "user-1", "  "); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank code, got %v", err)
	}
	if _, err := f.svc.Verify(context.Background(), "", "123456"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank user id, got %v", err)
	}
}

func TestMailFailureDoesNotFailFlow(t *testing.T) {
	f := newFixture(t, pendingUser())
	f.mailer.otpErr = errors.New("smtp down")
	f.mailer.sendError = errors.New("smtp down")

	code, err := f.svc.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Issue should tolerate mail failure: %v", err)
	}
	if _, err := f.svc.Verify(context.Background(), "user-1", code); err != nil {
		t.Fatalf("Verify should tolerate welcome mail failure: %v", err)
	}
	if !f.users.get("user-1").Verified {
		t.Fatalf("verification must stick despite mail failure")
	}
}
