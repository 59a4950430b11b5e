package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/certvault/custody-backend/cryptoutils"
	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/metrics"
	"github.com/google/uuid"
)

// Pipeline ties the key vault, cipher, blob store and registry into the
// issue, view and delete operations. It enforces every ownership and role
// gate; nothing above it re-checks authorization.
type Pipeline struct {
	registry interfaces.Registry
	keys     interfaces.KeyVault
	blobs    interfaces.StorageBackend
	log      *slog.Logger
}

// New creates a pipeline over the given collaborators.
func New(registry interfaces.Registry, keys interfaces.KeyVault, blobs interfaces.StorageBackend, log *slog.Logger) *Pipeline {
	return &Pipeline{
		registry: registry,
		keys:     keys,
		blobs:    blobs,
		log:      log,
	}
}

// IssueRequest is the input of one document issuance.
type IssueRequest struct {
	// OwnerEmail names the student receiving the document.
	OwnerEmail  string
	Title       string
	Description string
	Plaintext   []byte
}

// Issue encrypts plaintext under the owner's user key, uploads the envelope
// and registers the document. Institutions may issue to any student; a
// student may only self-upload; everyone else is refused.
//
// The steps run strictly in order: a blob upload that succeeds but whose
// registry write fails leaves an unreferenced envelope behind, which is
// logged and accepted. No document row is ever created without its envelope.
func (p *Pipeline) Issue(ctx context.Context, actor *interfaces.Identity, req IssueRequest) (*interfaces.Document, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", interfaces.ErrInvalidRequest)
	}
	if len(req.Plaintext) == 0 {
		return nil, fmt.Errorf("%w: document content is empty", interfaces.ErrInvalidRequest)
	}
	if req.OwnerEmail == "" {
		return nil, fmt.Errorf("%w: owner email is required", interfaces.ErrInvalidRequest)
	}

	owner, err := p.registry.Identities().GetByEmail(ctx, req.OwnerEmail)
	if err != nil {
		return nil, fmt.Errorf("resolving owner: %w", err)
	}

	switch actor.Role {
	case interfaces.RoleInstitution:
		// Institutions may issue to any student.
	case interfaces.RoleStudent:
		if owner.ID != actor.ID {
			return nil, fmt.Errorf("%w: students may only upload their own documents", interfaces.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: role %s may not issue documents", interfaces.ErrForbidden, actor.Role)
	}

	key, err := p.keys.GetOrCreateKey(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("provisioning user key: %w", err)
	}

	enc, err := cryptoutils.Encrypt(key, req.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting document: %w", err)
	}

	envelope := &interfaces.Envelope{
		EncryptedData: base64.StdEncoding.EncodeToString(enc.Ciphertext),
		IV:            base64.StdEncoding.EncodeToString(enc.IV),
		Tag:           base64.StdEncoding.EncodeToString(enc.Tag),
		Algorithm:     cryptoutils.AlgorithmAESGCM,
		OwnerID:       owner.ID,
	}

	payload, err := envelope.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	start := time.Now()
	contentID, err := p.blobs.Put(ctx, payload)
	if err != nil {
		if errors.Is(err, interfaces.ErrBackendUnavailable) {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("uploading envelope: %w", err)
	}

	attestedBy := ""
	if actor.Role == interfaces.RoleInstitution {
		attestedBy = actor.Name
	}

	doc := &interfaces.Document{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		Title:       req.Title,
		Description: req.Description,
		ContentID:   contentID,
		Encryption: interfaces.EncryptionParams{
			IV:        envelope.IV,
			Tag:       envelope.Tag,
			Algorithm: envelope.Algorithm,
		},
		AttestedBy: attestedBy,
	}

	if err := p.registry.Documents().Create(ctx, doc); err != nil {
		// The uploaded envelope is unreferenced now. Content-addressed
		// storage makes it harmless; external GC may reclaim it.
		p.log.Error("Registry write failed after envelope upload, orphan envelope left behind",
			slog.String("content_id", contentID.String()),
			slog.String("owner_id", owner.ID),
			"err", err)
		return nil, fmt.Errorf("%w: registering document: %v", interfaces.ErrStorageFailure, err)
	}

	metrics.DocumentsIssued.Inc()
	p.log.Info("Issued document",
		slog.String("document_id", doc.ID),
		slog.String("owner_id", owner.ID),
		slog.String("content_id", contentID.String()),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("attested", attestedBy != ""))

	return doc, nil
}

// ViewResult is one decrypted document.
type ViewResult struct {
	Document  *interfaces.Document
	Plaintext []byte
}

// View decrypts one document for its owner or for an institution holding a
// pending verification request on it.
func (p *Pipeline) View(ctx context.Context, actor *interfaces.Identity, documentID string) (*ViewResult, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}

	doc, err := p.registry.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return p.view(ctx, actor, doc)
}

// ViewByContentID decrypts the document owning a blob store handle, under
// the same authorization rules as View.
func (p *Pipeline) ViewByContentID(ctx context.Context, actor *interfaces.Identity, contentID interfaces.ContentID) (*ViewResult, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}

	doc, err := p.registry.Documents().GetByContentID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	return p.view(ctx, actor, doc)
}

func (p *Pipeline) view(ctx context.Context, actor *interfaces.Identity, doc *interfaces.Document) (*ViewResult, error) {
	if err := p.authorizeView(ctx, actor, doc); err != nil {
		return nil, err
	}

	plaintext, err := p.decrypt(ctx, doc)
	if err != nil {
		metrics.DecryptFailures.WithLabelValues(decryptFailureReason(err)).Inc()
		return nil, err
	}

	metrics.DocumentsDecrypted.Inc()
	return &ViewResult{Document: doc, Plaintext: plaintext}, nil
}

// authorizeView admits the owner, or the institution named on a pending
// verification request for the document. Everyone else is Forbidden.
func (p *Pipeline) authorizeView(ctx context.Context, actor *interfaces.Identity, doc *interfaces.Document) error {
	if actor.ID == doc.OwnerID {
		return nil
	}

	if actor.Role == interfaces.RoleInstitution {
		_, err := p.registry.VerificationRequests().FindPendingForDocument(ctx, doc.ID, actor.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("checking review grant: %w", err)
		}
	}

	return fmt.Errorf("%w: not the owner and no pending review", interfaces.ErrForbidden)
}

// decrypt fetches and opens the document's envelope. AEAD parameters come
// from the envelope when present, else from the registry's copy; an
// envelope claiming a different owner than the document is treated as
// corrupted.
func (p *Pipeline) decrypt(ctx context.Context, doc *interfaces.Document) ([]byte, error) {
	key, err := p.keys.GetKey(ctx, doc.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("loading owner key for document %s: %w", doc.ID, err)
	}

	payload, err := p.blobs.Get(ctx, doc.ContentID)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrContentNotFound):
			return nil, fmt.Errorf("%w: envelope %s", interfaces.ErrNotFound, doc.ContentID)
		case errors.Is(err, interfaces.ErrBackendUnavailable):
			return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
		default:
			return nil, fmt.Errorf("fetching envelope: %w", err)
		}
	}

	envelope, err := interfaces.DecodeEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIntegrityFailure, err)
	}

	if envelope.OwnerID != "" && envelope.OwnerID != doc.OwnerID {
		return nil, fmt.Errorf("%w: envelope owner mismatch", interfaces.ErrIntegrityFailure)
	}

	iv, tag, algorithm := envelope.IV, envelope.Tag, envelope.Algorithm
	if iv == "" {
		iv = doc.Encryption.IV
	}
	if tag == "" {
		tag = doc.Encryption.Tag
	}
	if algorithm == "" {
		algorithm = doc.Encryption.Algorithm
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable ciphertext: %v", interfaces.ErrIntegrityFailure, err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable IV: %v", interfaces.ErrIntegrityFailure, err)
	}
	tagBytes, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable tag: %v", interfaces.ErrIntegrityFailure, err)
	}

	plaintext, err := cryptoutils.Decrypt(key, ciphertext, ivBytes, tagBytes, algorithm)
	if err != nil {
		return nil, err
	}

	return plaintext, nil
}

// BulkViewResult reports a bulk decrypt: the successful items plus the
// number attempted, so callers can detect partial failure.
type BulkViewResult struct {
	Items     []*ViewResult
	Attempted int
}

// ViewAll decrypts every document the actor owns. Individual failures are
// skipped, not fatal.
func (p *Pipeline) ViewAll(ctx context.Context, actor *interfaces.Identity) (*BulkViewResult, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}

	docs, err := p.registry.Documents().ListByOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	result := &BulkViewResult{Attempted: len(docs)}
	for _, doc := range docs {
		plaintext, err := p.decrypt(ctx, doc)
		if err != nil {
			metrics.DecryptFailures.WithLabelValues(decryptFailureReason(err)).Inc()
			p.log.Warn("Skipping undecryptable document in bulk view",
				slog.String("document_id", doc.ID),
				"err", err)
			continue
		}
		metrics.DocumentsDecrypted.Inc()
		result.Items = append(result.Items, &ViewResult{Document: doc, Plaintext: plaintext})
	}

	return result, nil
}

// List returns the actor's document metadata, newest first. No decryption.
func (p *Pipeline) List(ctx context.Context, actor *interfaces.Identity) ([]*interfaces.Document, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	return p.registry.Documents().ListByOwner(ctx, actor.ID)
}

// Delete removes a document the actor owns, cascading its verification
// requests first. The stored envelope is left in place.
func (p *Pipeline) Delete(ctx context.Context, actor *interfaces.Identity, documentID string) error {
	if actor == nil {
		return interfaces.ErrUnauthenticated
	}
	if actor.Role != interfaces.RoleStudent {
		return fmt.Errorf("%w: only document owners delete documents", interfaces.ErrForbidden)
	}

	doc, err := p.registry.Documents().GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actor.ID {
		return fmt.Errorf("%w: not the owner", interfaces.ErrForbidden)
	}

	removed, err := p.registry.DeleteDocumentCascade(ctx, documentID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	p.log.Info("Deleted document",
		slog.String("document_id", documentID),
		slog.String("owner_id", actor.ID),
		slog.Int("cascaded_requests", removed))

	return nil
}

func decryptFailureReason(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrIntegrityFailure):
		return "integrity"
	case errors.Is(err, interfaces.ErrUnsupportedAlgorithm):
		return "algorithm"
	case errors.Is(err, interfaces.ErrKeyMissing):
		return "key_missing"
	case errors.Is(err, interfaces.ErrUpstreamUnavailable):
		return "upstream"
	case errors.Is(err, interfaces.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
