package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certvault/custody-backend/dbx"
	"github.com/certvault/custody-backend/interfaces"
)

// PostgresIdentityRepository persists identities in the identities table.
// Emails are normalized before storage so lookups are case-insensitive.
type PostgresIdentityRepository struct {
	db dbx.Querier
}

// NewPostgresIdentityRepository binds an identity repository to a querier.
func NewPostgresIdentityRepository(db dbx.Querier) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{db: db}
}

// Upsert creates the identity on first sight or refreshes its name and role,
// returning the stored row.
func (r *PostgresIdentityRepository) Upsert(ctx context.Context, identity *interfaces.Identity) (*interfaces.Identity, error) {
	query := `
		INSERT INTO identities (id, email, name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    role = CASE WHEN EXCLUDED.role <> '' THEN EXCLUDED.role ELSE identities.role END,
		    updated_at = now()
		RETURNING id, email, name, role, created_at, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		identity.ID,
		interfaces.NormalizeEmail(identity.Email),
		identity.Name,
		string(identity.Role))

	return scanIdentity(row)
}

// GetByID returns the identity or ErrNotFound.
func (r *PostgresIdentityRepository) GetByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM identities WHERE id = $1`

	return scanIdentity(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail returns the identity owning the normalized email, or ErrNotFound.
func (r *PostgresIdentityRepository) GetByEmail(ctx context.Context, email string) (*interfaces.Identity, error) {
	query := `
		SELECT id, email, name, role, created_at, updated_at
		FROM identities WHERE email = $1`

	return scanIdentity(r.db.QueryRowContext(ctx, query, interfaces.NormalizeEmail(email)))
}

// UpdateRole sets the identity's role.
func (r *PostgresIdentityRepository) UpdateRole(ctx context.Context, id string, role interfaces.Role) error {
	query := `UPDATE identities SET role = $2, updated_at = now() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, string(role))
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return interfaces.ErrNotFound
	}

	return nil
}

func scanIdentity(row *sql.Row) (*interfaces.Identity, error) {
	var identity interfaces.Identity
	var role string

	err := row.Scan(&identity.ID, &identity.Email, &identity.Name, &role,
		&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}

	identity.Role = interfaces.Role(role)
	return &identity, nil
}
