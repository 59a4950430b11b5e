package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/certvault/custody-backend/interfaces"
)

// MemoryRegistry is an in-memory Registry used in tests and local
// development. It enforces the same uniqueness rules as the PostgreSQL
// implementation.
type MemoryRegistry struct {
	mu         sync.RWMutex
	identities map[string]*interfaces.Identity
	documents  map[string]*interfaces.Document
	requests   map[string]*interfaces.VerificationRequest
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		identities: make(map[string]*interfaces.Identity),
		documents:  make(map[string]*interfaces.Document),
		requests:   make(map[string]*interfaces.VerificationRequest),
	}
}

// Identities returns the identity repository.
func (m *MemoryRegistry) Identities() interfaces.IdentityRepository {
	return (*memoryIdentities)(m)
}

// Documents returns the document repository.
func (m *MemoryRegistry) Documents() interfaces.DocumentRepository {
	return (*memoryDocuments)(m)
}

// VerificationRequests returns the verification request repository.
func (m *MemoryRegistry) VerificationRequests() interfaces.VerificationRequestRepository {
	return (*memoryRequests)(m)
}

// DeleteDocumentCascade removes a document and its requests under one lock.
func (m *MemoryRegistry) DeleteDocumentCascade(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[documentID]; !ok {
		return 0, interfaces.ErrNotFound
	}

	removed := 0
	for id, req := range m.requests {
		if req.DocumentID == documentID {
			delete(m.requests, id)
			removed++
		}
	}

	delete(m.documents, documentID)
	return removed, nil
}

type memoryIdentities MemoryRegistry

func (m *memoryIdentities) Upsert(ctx context.Context, identity *interfaces.Identity) (*interfaces.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	email := interfaces.NormalizeEmail(identity.Email)

	existing, ok := m.identities[identity.ID]
	if !ok {
		stored := *identity
		stored.Email = email
		stored.CreatedAt = now
		stored.UpdatedAt = now
		m.identities[identity.ID] = &stored
		cp := stored
		return &cp, nil
	}

	existing.Email = email
	existing.Name = identity.Name
	if identity.Role != interfaces.RoleUnset {
		existing.Role = identity.Role
	}
	existing.UpdatedAt = now
	cp := *existing
	return &cp, nil
}

func (m *memoryIdentities) GetByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (m *memoryIdentities) GetByEmail(ctx context.Context, email string) (*interfaces.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = interfaces.NormalizeEmail(email)
	for _, identity := range m.identities {
		if identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memoryIdentities) UpdateRole(ctx context.Context, id string, role interfaces.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	identity.Role = role
	identity.UpdatedAt = time.Now()
	return nil
}

type memoryDocuments MemoryRegistry

func (m *memoryDocuments) Create(ctx context.Context, doc *interfaces.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[doc.ID]; ok {
		return fmt.Errorf("%w: document %s", interfaces.ErrConflict, doc.ID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	stored := *doc
	m.documents[doc.ID] = &stored
	return nil
}

func (m *memoryDocuments) GetByID(ctx context.Context, id string) (*interfaces.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memoryDocuments) GetByContentID(ctx context.Context, contentID interfaces.ContentID) (*interfaces.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.documents {
		if doc.ContentID == contentID {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memoryDocuments) ListByOwner(ctx context.Context, ownerID string) ([]*interfaces.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []*interfaces.Document
	for _, doc := range m.documents {
		if doc.OwnerID == ownerID {
			cp := *doc
			docs = append(docs, &cp)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	return docs, nil
}

func (m *memoryDocuments) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, doc := range m.documents {
		if doc.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *memoryDocuments) CountAttestedByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, doc := range m.documents {
		if doc.OwnerID == ownerID && doc.Attested() {
			count++
		}
	}
	return count, nil
}

func (m *memoryDocuments) SetAttestedBy(ctx context.Context, id string, attestedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	doc.AttestedBy = attestedBy
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *memoryDocuments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

type memoryRequests MemoryRegistry

func (m *memoryRequests) Create(ctx context.Context, req *interfaces.VerificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.DocumentID == req.DocumentID &&
			existing.StudentID == req.StudentID &&
			existing.InstitutionID == req.InstitutionID {
			return fmt.Errorf("%w: pending request already exists", interfaces.ErrConflict)
		}
	}

	req.CreatedAt = time.Now()
	stored := *req
	m.requests[req.ID] = &stored
	return nil
}

func (m *memoryRequests) GetByID(ctx context.Context, id string) (*interfaces.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memoryRequests) FindPending(ctx context.Context, documentID, studentID, institutionID string) (*interfaces.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.requests {
		if req.DocumentID == documentID && req.StudentID == studentID && req.InstitutionID == institutionID {
			cp := *req
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memoryRequests) FindPendingForDocument(ctx context.Context, documentID, institutionID string) (*interfaces.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.requests {
		if req.DocumentID == documentID && req.InstitutionID == institutionID {
			cp := *req
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memoryRequests) ListByInstitution(ctx context.Context, institutionID string) ([]*interfaces.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reqs []*interfaces.VerificationRequest
	for _, req := range m.requests {
		if req.InstitutionID == institutionID {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	sortRequests(reqs)
	return reqs, nil
}

func (m *memoryRequests) ListByStudent(ctx context.Context, studentID string) ([]*interfaces.VerificationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reqs []*interfaces.VerificationRequest
	for _, req := range m.requests {
		if req.StudentID == studentID {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	sortRequests(reqs)
	return reqs, nil
}

func (m *memoryRequests) CountByInstitution(ctx context.Context, institutionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, req := range m.requests {
		if req.InstitutionID == institutionID {
			count++
		}
	}
	return count, nil
}

func (m *memoryRequests) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *memoryRequests) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, req := range m.requests {
		if req.DocumentID == documentID {
			delete(m.requests, id)
			removed++
		}
	}
	return removed, nil
}

func sortRequests(reqs []*interfaces.VerificationRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}
