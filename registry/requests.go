package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/certvault/custody-backend/dbx"
	"github.com/certvault/custody-backend/interfaces"
)

// PostgresVerificationRequestRepository persists pending verification
// requests. Resolved requests are deleted, never updated, so every stored
// row is pending.
type PostgresVerificationRequestRepository struct {
	db dbx.Querier
}

// NewPostgresVerificationRequestRepository binds a request repository to a
// querier.
func NewPostgresVerificationRequestRepository(db dbx.Querier) *PostgresVerificationRequestRepository {
	return &PostgresVerificationRequestRepository{db: db}
}

const requestColumns = `id, document_id, student_id, institution_id, status, created_at`

// Create inserts a request row. A second pending request for the same
// (document, student, institution) triple violates the unique constraint and
// surfaces as ErrConflict.
func (r *PostgresVerificationRequestRepository) Create(ctx context.Context, req *interfaces.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests (id, document_id, student_id, institution_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		req.ID, req.DocumentID, req.StudentID, req.InstitutionID, string(req.Status),
	).Scan(&req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: pending request already exists", interfaces.ErrConflict)
		}
		return fmt.Errorf("failed to insert verification request: %w", err)
	}

	return nil
}

// GetByID returns the request or ErrNotFound.
func (r *PostgresVerificationRequestRepository) GetByID(ctx context.Context, id string) (*interfaces.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	return scanRequest(r.db.QueryRowContext(ctx, query, id))
}

// FindPending returns the pending request for the exact triple, or
// ErrNotFound.
func (r *PostgresVerificationRequestRepository) FindPending(ctx context.Context, documentID, studentID, institutionID string) (*interfaces.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE document_id = $1 AND student_id = $2 AND institution_id = $3`

	return scanRequest(r.db.QueryRowContext(ctx, query, documentID, studentID, institutionID))
}

// FindPendingForDocument returns the pending request an institution holds on
// a document, or ErrNotFound.
func (r *PostgresVerificationRequestRepository) FindPendingForDocument(ctx context.Context, documentID, institutionID string) (*interfaces.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE document_id = $1 AND institution_id = $2`

	return scanRequest(r.db.QueryRowContext(ctx, query, documentID, institutionID))
}

// ListByInstitution returns the institution's review queue, newest first.
func (r *PostgresVerificationRequestRepository) ListByInstitution(ctx context.Context, institutionID string) ([]*interfaces.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE institution_id = $1 ORDER BY created_at DESC`

	return r.list(ctx, query, institutionID)
}

// ListByStudent returns the student's outstanding requests, newest first.
func (r *PostgresVerificationRequestRepository) ListByStudent(ctx context.Context, studentID string) ([]*interfaces.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE student_id = $1 ORDER BY created_at DESC`

	return r.list(ctx, query, studentID)
}

// CountByInstitution returns the institution's pending request count.
func (r *PostgresVerificationRequestRepository) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM verification_requests WHERE institution_id = $1`,
		institutionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count verification requests: %w", err)
	}
	return count, nil
}

// Delete removes one request row.
func (r *PostgresVerificationRequestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM verification_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete verification request: %w", err)
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

// DeleteByDocument removes all requests referencing a document.
func (r *PostgresVerificationRequestRepository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_requests WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete verification requests: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *PostgresVerificationRequestRepository) list(ctx context.Context, query string, arg any) ([]*interfaces.VerificationRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification requests: %w", err)
	}
	defer rows.Close()

	var reqs []*interfaces.VerificationRequest
	for rows.Next() {
		req, err := scanRequestFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification request: %w", err)
		}
		reqs = append(reqs, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verification requests: %w", err)
	}

	return reqs, nil
}

func scanRequestFrom(s rowScanner) (*interfaces.VerificationRequest, error) {
	var req interfaces.VerificationRequest
	var status string

	err := s.Scan(&req.ID, &req.DocumentID, &req.StudentID, &req.InstitutionID,
		&status, &req.CreatedAt)
	if err != nil {
		return nil, err
	}

	req.Status = interfaces.RequestStatus(status)
	return &req, nil
}

func scanRequest(row *sql.Row) (*interfaces.VerificationRequest, error) {
	req, err := scanRequestFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan verification request: %w", err)
	}
	return req, nil
}

// isUniqueViolation detects the Postgres unique_violation error class.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
