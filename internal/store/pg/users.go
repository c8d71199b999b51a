package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/user"
)

var _ user.Store = (*UserStore)(nil)

// UserStore implements user.Store on PostgreSQL.
type UserStore struct {
	db *sql.DB
}

const userColumns = `id, email, password_hash, role, overrides, verified, active, created_at, updated_at`

func (s *UserStore) Find(ctx context.Context, id string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *UserStore) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set verified=true, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, id, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanUser(row *sql.Row) (*user.User, error) {
	var (
		u         user.User
		role      string
		overrides []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &overrides,
		&u.Verified, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	u.Role = authz.Role(role)
	if len(overrides) > 0 {
		var raw []string
		if err := json.Unmarshal(overrides, &raw); err != nil {
			return nil, err
		}
		u.Overrides = make([]authz.Permission, 0, len(raw))
		for _, p := range raw {
			u.Overrides = append(u.Overrides, authz.Permission(p))
		}
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
