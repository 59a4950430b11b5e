package keyvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certvault/custody-backend/dbx"
	"github.com/certvault/custody-backend/interfaces"
)

// PostgresStore keeps sealed user keys on the identity row, matching the
// data model where the key is conceptually a field of the identity.
type PostgresStore struct {
	db dbx.Querier
}

// NewPostgresStore creates a key store over the identities table.
func NewPostgresStore(db dbx.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the identity's sealed key. A NULL column and a missing row
// both report ErrKeyMissing: either way the identity holds no key.
func (s *PostgresStore) Get(ctx context.Context, identityID string) (string, error) {
	query := `SELECT sealed_key FROM identities WHERE id = $1`

	var sealed sql.NullString
	err := s.db.QueryRowContext(ctx, query, identityID).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", interfaces.ErrKeyMissing
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	if !sealed.Valid || sealed.String == "" {
		return "", interfaces.ErrKeyMissing
	}
	return sealed.String, nil
}

// PutIfAbsent sets the sealed key only when the column is still NULL. The
// WHERE clause is the create-if-absent enforcement point: a concurrent
// writer that lost the race updates zero rows and keeps the winner's key.
func (s *PostgresStore) PutIfAbsent(ctx context.Context, identityID string, sealed string) error {
	query := `
		UPDATE identities SET sealed_key = $2, updated_at = now()
		WHERE id = $1 AND sealed_key IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, identityID, sealed)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		// Either the identity already holds a key (fine, caller re-reads) or
		// the row does not exist (the follow-up Get reports ErrKeyMissing).
		return nil
	}
	return nil
}
