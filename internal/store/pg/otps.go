package pg

import (
	"context"
	"database/sql"
	"errors"

	"sitecraft.dev/cms/internal/otp"
)

var _ otp.Store = (*OTPStore)(nil)

// OTPStore implements otp.Store on PostgreSQL.
type OTPStore struct {
	db *sql.DB
}

func (s *OTPStore) Create(ctx context.Context, row *otp.OTP) error {
	_, err := s.db.ExecContext(ctx,
		`insert into otps(id, user_id, code_hash, created_at, expires_at) values($1,$2,$3,$4,$5)`,
		row.ID, row.UserID, row.CodeHash, row.CreatedAt, row.ExpiresAt,
	)
	return err
}

func (s *OTPStore) LatestByUser(ctx context.Context, userID string) (*otp.OTP, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, code_hash, created_at, expires_at
		 from otps where user_id=$1 order by created_at desc limit 1`, userID)
	var o otp.OTP
	if err := row.Scan(&o.ID, &o.UserID, &o.CodeHash, &o.CreatedAt, &o.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otp.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// Consume deletes the row and reports otp.ErrNotFound when it was already
// gone. The zero-rows check is what makes concurrent verifications of the
// same code resolve to a single winner.
func (s *OTPStore) Consume(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from otps where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otp.ErrNotFound
	}
	return nil
}
