package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sitecraft.dev/cms/internal/apikey"
	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/otp"
	"sitecraft.dev/cms/internal/token"
	"sitecraft.dev/cms/internal/user"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestUserFindScansOverrides(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "role", "overrides", "verified", "active", "created_at", "updated_at",
	}).AddRow("u1", "a@example.com", "hash", "MANAGER", []byte(`["blogs:review"]`), true, true, now, now)
	mock.ExpectQuery("select id, email, password_hash, role, overrides.*from users where id=").
		WithArgs("u1").WillReturnRows(rows)

	u, err := store.Users().Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.Role != authz.RoleManager {
		t.Fatalf("role = %q, want MANAGER", u.Role)
	}
	if len(u.Overrides) != 1 || u.Overrides[0] != authz.PermBlogReview {
		t.Fatalf("overrides = %v", u.Overrides)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select id, email, password_hash, role, overrides.*from users where id=").
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.Users().Find(context.Background(), "ghost")
	if !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}
}

func TestMarkVerifiedRequiresRow(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update users set verified=true").
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Users().MarkVerified(context.Background(), "u1"); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}

	mock.ExpectExec("update users set verified=true").
		WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users().MarkVerified(context.Background(), "ghost"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}
}

func TestMarkRotatedReportsWin(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("(?s)update refresh_tokens set rotated_at=.*rotated_at is null and revoked_at is null").
		WithArgs("tok-1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := store.RefreshTokens().MarkRotated(context.Background(), "tok-1", at)
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if !won {
		t.Fatalf("expected the conditional update to win")
	}

	// A second caller finds the row already rotated and loses.
	mock.ExpectExec("update refresh_tokens set rotated_at=").
		WithArgs("tok-1", at).WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = store.RefreshTokens().MarkRotated(context.Background(), "tok-1", at)
	if err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if won {
		t.Fatalf("expected the conditional update to lose")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRefreshTokenFindMapsNullTimes(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "lineage_id", "token_hash", "rotated_from", "issued_at", "expires_at", "rotated_at", "revoked_at",
	}).AddRow("tok-1", "u1", "lin-1", "digest", "", now, now.Add(24*time.Hour), nil, nil)
	mock.ExpectQuery("(?s)select id, user_id, lineage_id, token_hash.*from refresh_tokens where id=").
		WithArgs("tok-1").WillReturnRows(rows)

	rec, err := store.RefreshTokens().Find(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.RotatedAt != nil || rec.RevokedAt != nil {
		t.Fatalf("fresh token should carry nil rotation marks")
	}

	rotated := now.Add(time.Minute)
	rows = sqlmock.NewRows([]string{
		"id", "user_id", "lineage_id", "token_hash", "rotated_from", "issued_at", "expires_at", "rotated_at", "revoked_at",
	}).AddRow("tok-2", "u1", "lin-1", "digest", "tok-1", now, now.Add(24*time.Hour), rotated, nil)
	mock.ExpectQuery("(?s)select id, user_id, lineage_id, token_hash.*from refresh_tokens where id=").
		WithArgs("tok-2").WillReturnRows(rows)

	rec, err = store.RefreshTokens().Find(context.Background(), "tok-2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.RotatedAt == nil || !rec.RotatedAt.Equal(rotated) {
		t.Fatalf("rotated_at not mapped: %v", rec.RotatedAt)
	}
	if rec.RotatedFrom != "tok-1" {
		t.Fatalf("rotated_from = %q, want tok-1", rec.RotatedFrom)
	}
}

func TestRefreshTokenFindNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("(?s)select id, user_id, lineage_id, token_hash.*from refresh_tokens where id=").
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.RefreshTokens().Find(context.Background(), "ghost")
	if !errors.Is(err, token.ErrNotFound) {
		t.Fatalf("expected token.ErrNotFound, got %v", err)
	}
}

func TestRefreshTokenCreate(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("tok-1", "u1", "lin-1", "digest", "", now, now.Add(24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RefreshTokens().Create(context.Background(), &token.RefreshToken{
		ID:        "tok-1",
		UserID:    "u1",
		LineageID: "lin-1",
		TokenHash: "digest",
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestRevokeLineageGuardsRevoked(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("update refresh_tokens set revoked_at=.*lineage_id=.*revoked_at is null").
		WithArgs("lin-1", at).WillReturnResult(sqlmock.NewResult(0, 3))
	if err := store.RefreshTokens().RevokeLineage(context.Background(), "lin-1", at); err != nil {
		t.Fatalf("RevokeLineage: %v", err)
	}

	mock.ExpectExec("update refresh_tokens set revoked_at=.*user_id=.*revoked_at is null").
		WithArgs("u1", at).WillReturnResult(sqlmock.NewResult(0, 2))
	if err := store.RefreshTokens().RevokeByUser(context.Background(), "u1", at); err != nil {
		t.Fatalf("RevokeByUser: %v", err)
	}
}

func TestOTPLatestByUser(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "code_hash", "created_at", "expires_at"}).
		AddRow("otp-2", "u1", "hash", now, now.Add(10*time.Minute))
	mock.ExpectQuery("(?s)select id, user_id, code_hash.*from otps where user_id=.*order by created_at desc limit 1").
		WithArgs("u1").WillReturnRows(rows)

	row, err := store.OTPs().LatestByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LatestByUser: %v", err)
	}
	if row.ID != "otp-2" {
		t.Fatalf("id = %q, want otp-2", row.ID)
	}

	mock.ExpectQuery("(?s)select id, user_id, code_hash.*from otps where user_id=").
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	if _, err := store.OTPs().LatestByUser(context.Background(), "ghost"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("expected otp.ErrNotFound, got %v", err)
	}
}

func TestOTPCreateAndConsume(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into otps").
		WithArgs("otp-1", "u1", "hash", now, now.Add(10*time.Minute)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	err := store.OTPs().Create(context.Background(), &otp.OTP{
		ID:        "otp-1",
		UserID:    "u1",
		CodeHash:  "hash",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectExec("delete from otps where id=").
		WithArgs("otp-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.OTPs().Consume(context.Background(), "otp-1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
}

func TestOTPConsumeAlreadyConsumed(t *testing.T) {
	store, mock := newMock(t)

	// The row was deleted by an earlier verification: zero affected rows
	// must surface as ErrNotFound so a second verification cannot succeed.
	mock.ExpectExec("delete from otps where id=").
		WithArgs("otp-1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.OTPs().Consume(context.Background(), "otp-1"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("Consume = %v, want otp.ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAPIKeyFindByHash(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "key_hash", "permissions", "created_at"}).
		AddRow("key-1", "integration", "digest", []byte(`["content:read","lead:read"]`), now)
	mock.ExpectQuery("(?s)select id, name, key_hash, permissions.*from api_keys where key_hash=.*revoked_at is null").
		WithArgs("digest").WillReturnRows(rows)

	key, err := store.APIKeys().FindByHash(context.Background(), "digest")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if len(key.Permissions) != 2 || key.Permissions[0] != authz.PermContentRead {
		t.Fatalf("permissions = %v", key.Permissions)
	}

	mock.ExpectQuery("(?s)select id, name, key_hash, permissions.*from api_keys").
		WithArgs("unknown").WillReturnError(sql.ErrNoRows)
	if _, err := store.APIKeys().FindByHash(context.Background(), "unknown"); !errors.Is(err, apikey.ErrNotFound) {
		t.Fatalf("expected apikey.ErrNotFound, got %v", err)
	}
}
