package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certvault/custody-backend/dbx"
	"github.com/certvault/custody-backend/interfaces"
)

// PostgresDocumentRepository persists document metadata in the documents
// table. AEAD parameters are stored as plain columns next to the content id.
type PostgresDocumentRepository struct {
	db dbx.Querier
}

// NewPostgresDocumentRepository binds a document repository to a querier.
func NewPostgresDocumentRepository(db dbx.Querier) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

const documentColumns = `id, owner_id, title, description, content_id, iv, tag, algorithm, attested_by, created_at, updated_at`

// Create inserts a document row and fills in the store-assigned timestamps.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *interfaces.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, title, description, content_id, iv, tag, algorithm, attested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Title, doc.Description,
		doc.ContentID.String(),
		doc.Encryption.IV, doc.Encryption.Tag, doc.Encryption.Algorithm,
		doc.AttestedBy,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

// GetByID returns the document or ErrNotFound.
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id string) (*interfaces.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id))
}

// GetByContentID resolves a blob store handle back to its document row.
func (r *PostgresDocumentRepository) GetByContentID(ctx context.Context, contentID interfaces.ContentID) (*interfaces.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, contentID.String()))
}

// ListByOwner returns all documents owned by an identity, newest first.
func (r *PostgresDocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*interfaces.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*interfaces.Document
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, nil
}

// CountByOwner returns the number of documents owned by an identity.
func (r *PostgresDocumentRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// CountAttestedByOwner returns how many of an identity's documents carry an
// attestation.
func (r *PostgresDocumentRepository) CountAttestedByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE owner_id = $1 AND attested_by <> ''`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attested documents: %w", err)
	}
	return count, nil
}

// SetAttestedBy records the attesting institution's display name.
func (r *PostgresDocumentRepository) SetAttestedBy(ctx context.Context, id string, attestedBy string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET attested_by = $2, updated_at = now() WHERE id = $1`,
		id, attestedBy)
	if err != nil {
		return fmt.Errorf("failed to set attestation: %w", err)
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

// Delete removes the document row.
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentFrom(s rowScanner) (*interfaces.Document, error) {
	var doc interfaces.Document
	var contentID string

	err := s.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Description,
		&contentID,
		&doc.Encryption.IV, &doc.Encryption.Tag, &doc.Encryption.Algorithm,
		&doc.AttestedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	doc.ContentID = interfaces.ContentID(contentID)
	return &doc, nil
}

func scanDocument(row *sql.Row) (*interfaces.Document, error) {
	doc, err := scanDocumentFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return doc, nil
}

func scanDocumentRow(rows *sql.Rows) (*interfaces.Document, error) {
	doc, err := scanDocumentFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return doc, nil
}
