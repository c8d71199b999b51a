package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"sitecraft.dev/cms/internal/apikey"
	"sitecraft.dev/cms/internal/authz"
)

var _ apikey.Store = (*APIKeyStore)(nil)

// APIKeyStore implements apikey.Store on PostgreSQL.
type APIKeyStore struct {
	db *sql.DB
}

func (s *APIKeyStore) FindByHash(ctx context.Context, hash string) (*apikey.Key, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, key_hash, permissions, created_at
		 from api_keys where key_hash=$1 and revoked_at is null`, hash)
	var (
		k     apikey.Key
		perms []byte
	)
	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &perms, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrNotFound
		}
		return nil, err
	}
	if len(perms) > 0 {
		var raw []string
		if err := json.Unmarshal(perms, &raw); err != nil {
			return nil, err
		}
		k.Permissions = make([]authz.Permission, 0, len(raw))
		for _, p := range raw {
			k.Permissions = append(k.Permissions, authz.Permission(p))
		}
	}
	return &k, nil
}
