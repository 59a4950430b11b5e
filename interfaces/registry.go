package interfaces

import "context"

// IdentityRepository persists identities. Email uniqueness is enforced by
// the store; lookups by email are case-insensitive (emails are normalized
// before storage).
type IdentityRepository interface {
	// Upsert creates the identity on first sight or refreshes its name and
	// role from the identity provider, and returns the stored row.
	Upsert(ctx context.Context, identity *Identity) (*Identity, error)

	// GetByID returns the identity or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Identity, error)

	// GetByEmail returns the identity owning the normalized email, or
	// ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// UpdateRole sets the identity's role.
	UpdateRole(ctx context.Context, id string, role Role) error
}

// DocumentRepository persists document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error

	// GetByID returns the document or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Document, error)

	// GetByContentID resolves a blob store handle back to its document, or
	// ErrNotFound.
	GetByContentID(ctx context.Context, contentID ContentID) (*Document, error)

	// ListByOwner returns all documents owned by an identity, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Document, error)

	// CountByOwner returns the number of documents owned by an identity.
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// CountAttestedByOwner returns how many of an identity's documents carry
	// an attestation.
	CountAttestedByOwner(ctx context.Context, ownerID string) (int, error)

	// SetAttestedBy records the attesting institution's display name.
	SetAttestedBy(ctx context.Context, id string, attestedBy string) error

	// Delete removes the document row. Dependent verification requests must
	// already be gone; use Registry.DeleteDocumentCascade from callers.
	Delete(ctx context.Context, id string) error
}

// VerificationRequestRepository persists pending verification requests.
type VerificationRequestRepository interface {
	Create(ctx context.Context, req *VerificationRequest) error

	// GetByID returns the request or ErrNotFound.
	GetByID(ctx context.Context, id string) (*VerificationRequest, error)

	// FindPending returns the pending request for the exact (document,
	// student, institution) triple, or ErrNotFound.
	FindPending(ctx context.Context, documentID, studentID, institutionID string) (*VerificationRequest, error)

	// FindPendingForDocument returns the pending request a given institution
	// holds on a document, or ErrNotFound. This is the grant check for
	// institution-review decryption.
	FindPendingForDocument(ctx context.Context, documentID, institutionID string) (*VerificationRequest, error)

	// ListByInstitution returns the institution's review queue, newest first.
	ListByInstitution(ctx context.Context, institutionID string) ([]*VerificationRequest, error)

	// ListByStudent returns the student's outstanding requests, newest first.
	ListByStudent(ctx context.Context, studentID string) ([]*VerificationRequest, error)

	// CountByInstitution returns the institution's pending request count.
	CountByInstitution(ctx context.Context, institutionID string) (int, error)

	// Delete removes one request row.
	Delete(ctx context.Context, id string) error

	// DeleteByDocument removes all requests referencing a document and
	// returns how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// Registry aggregates the repositories of the document registry and the
// cross-repository operations that must be atomic.
type Registry interface {
	Identities() IdentityRepository
	Documents() DocumentRepository
	VerificationRequests() VerificationRequestRepository

	// DeleteDocumentCascade removes a document and its verification requests
	// atomically, dependents first, and returns the removed request count.
	// A crash mid-way may leave a document with no requests, never a request
	// referencing a deleted document.
	DeleteDocumentCascade(ctx context.Context, documentID string) (int, error)
}
