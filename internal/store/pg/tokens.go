package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sitecraft.dev/cms/internal/token"
)

var _ token.Store = (*RefreshTokenStore)(nil)

// RefreshTokenStore implements token.Store on PostgreSQL.
type RefreshTokenStore struct {
	db *sql.DB
}

func (s *RefreshTokenStore) Create(ctx context.Context, tok *token.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, lineage_id, token_hash, rotated_from, issued_at, expires_at)
		 values($1,$2,$3,$4,nullif($5,''),$6,$7)`,
		tok.ID, tok.UserID, tok.LineageID, tok.TokenHash, tok.RotatedFrom, tok.IssuedAt, tok.ExpiresAt,
	)
	return err
}

func (s *RefreshTokenStore) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, lineage_id, token_hash, coalesce(rotated_from,''), issued_at, expires_at, rotated_at, revoked_at
		 from refresh_tokens where id=$1`, id)
	var (
		tok       token.RefreshToken
		rotatedAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.UserID, &tok.LineageID, &tok.TokenHash, &tok.RotatedFrom,
		&tok.IssuedAt, &tok.ExpiresAt, &rotatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, err
	}
	if rotatedAt.Valid {
		t := rotatedAt.Time
		tok.RotatedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		tok.RevokedAt = &t
	}
	return &tok, nil
}

// MarkRotated is the rotation linearization point: a single conditional
// update that only one concurrent caller can win.
func (s *RefreshTokenStore) MarkRotated(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set rotated_at=$2
		 where id=$1 and rotated_at is null and revoked_at is null`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) RevokeLineage(ctx context.Context, lineageID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2 where lineage_id=$1 and revoked_at is null`,
		lineageID, at,
	)
	return err
}

func (s *RefreshTokenStore) RevokeByUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2 where user_id=$1 and revoked_at is null`,
		userID, at,
	)
	return err
}
