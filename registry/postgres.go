package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certvault/custody-backend/dbx"
	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/registry/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRegistry is the production registry. It owns the database handle,
// vends repositories bound to it, and runs cross-repository deletes inside a
// transaction.
type PostgresRegistry struct {
	db         *sql.DB
	identities *PostgresIdentityRepository
	documents  *PostgresDocumentRepository
	requests   *PostgresVerificationRequestRepository
}

// NewPostgresRegistry opens a connection pool for the DSN and verifies it
// with a ping. Call RunMigrations before serving traffic.
func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRegistry{
		db:         db,
		identities: NewPostgresIdentityRepository(db),
		documents:  NewPostgresDocumentRepository(db),
		requests:   NewPostgresVerificationRequestRepository(db),
	}, nil
}

// RunMigrations applies the embedded schema migrations.
func (r *PostgresRegistry) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, r.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Identities returns the identity repository.
func (r *PostgresRegistry) Identities() interfaces.IdentityRepository {
	return r.identities
}

// Documents returns the document repository.
func (r *PostgresRegistry) Documents() interfaces.DocumentRepository {
	return r.documents
}

// VerificationRequests returns the verification request repository.
func (r *PostgresRegistry) VerificationRequests() interfaces.VerificationRequestRepository {
	return r.requests
}

// DeleteDocumentCascade removes a document and its verification requests in
// one transaction, dependents first.
func (r *PostgresRegistry) DeleteDocumentCascade(ctx context.Context, documentID string) (int, error) {
	var removed int

	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.Querier) error {
		requests := NewPostgresVerificationRequestRepository(tx)
		documents := NewPostgresDocumentRepository(tx)

		n, err := requests.DeleteByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		removed = n

		return documents.Delete(ctx, documentID)
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// DB exposes the underlying handle for health checks and the key store.
func (r *PostgresRegistry) DB() *sql.DB {
	return r.db
}

// Close releases the connection pool.
func (r *PostgresRegistry) Close() error {
	return r.db.Close()
}
