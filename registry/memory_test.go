package registry

import (
	"context"
	"testing"

	"github.com/certvault/custody-backend/interfaces"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIdentity(t *testing.T, reg *MemoryRegistry, email string, role interfaces.Role) *interfaces.Identity {
	t.Helper()
	identity, err := reg.Identities().Upsert(context.Background(), &interfaces.Identity{
		ID:    uuid.NewString(),
		Email: email,
		Name:  "Test " + string(role),
		Role:  role,
	})
	require.NoError(t, err)
	return identity
}

func seedDocument(t *testing.T, reg *MemoryRegistry, ownerID string) *interfaces.Document {
	t.Helper()
	doc := &interfaces.Document{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     "Transcript",
		ContentID: interfaces.ContentID("Qm" + uuid.NewString()),
		Encryption: interfaces.EncryptionParams{
			IV:        "aXZpdml2aXZpdg==",
			Tag:       "dGFnCg==",
			Algorithm: "aes-256-gcm",
		},
	}
	require.NoError(t, reg.Documents().Create(context.Background(), doc))
	return doc
}

func TestMemoryIdentities_UpsertAndLookup(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	created := seedIdentity(t, reg, "Alice@Example.COM", interfaces.RoleStudent)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.CreatedAt.IsZero())

	byEmail, err := reg.Identities().GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	// Upsert with an unset role keeps the stored role.
	refreshed, err := reg.Identities().Upsert(ctx, &interfaces.Identity{
		ID:    created.ID,
		Email: created.Email,
		Name:  "Alice Renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleStudent, refreshed.Role)
	assert.Equal(t, "Alice Renamed", refreshed.Name)

	_, err = reg.Identities().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, reg.Identities().UpdateRole(ctx, created.ID, interfaces.RoleInstitution))
	updated, err := reg.Identities().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleInstitution, updated.Role)
}

func TestMemoryDocuments_Counts(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	owner := seedIdentity(t, reg, "student@example.com", interfaces.RoleStudent)
	doc1 := seedDocument(t, reg, owner.ID)
	doc2 := seedDocument(t, reg, owner.ID)
	seedDocument(t, reg, "someone-else")

	require.NoError(t, reg.Documents().SetAttestedBy(ctx, doc1.ID, "MIT"))

	total, err := reg.Documents().CountByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	attested, err := reg.Documents().CountAttestedByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attested)

	byContent, err := reg.Documents().GetByContentID(ctx, doc2.ContentID)
	require.NoError(t, err)
	assert.Equal(t, doc2.ID, byContent.ID)

	listed, err := reg.Documents().ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestMemoryRequests_PendingTripleIsUnique(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	student := seedIdentity(t, reg, "student@example.com", interfaces.RoleStudent)
	institution := seedIdentity(t, reg, "registrar@university.edu", interfaces.RoleInstitution)
	doc := seedDocument(t, reg, student.ID)

	req := &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		StudentID:     student.ID,
		InstitutionID: institution.ID,
		Status:        interfaces.StatusPending,
	}
	require.NoError(t, reg.VerificationRequests().Create(ctx, req))

	dup := &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		StudentID:     student.ID,
		InstitutionID: institution.ID,
		Status:        interfaces.StatusPending,
	}
	err := reg.VerificationRequests().Create(ctx, dup)
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	found, err := reg.VerificationRequests().FindPending(ctx, doc.ID, student.ID, institution.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)

	granted, err := reg.VerificationRequests().FindPendingForDocument(ctx, doc.ID, institution.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, granted.ID)

	_, err = reg.VerificationRequests().FindPendingForDocument(ctx, doc.ID, "other-institution")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMemoryRegistry_DeleteDocumentCascade(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	student := seedIdentity(t, reg, "student@example.com", interfaces.RoleStudent)
	inst1 := seedIdentity(t, reg, "one@university.edu", interfaces.RoleInstitution)
	inst2 := seedIdentity(t, reg, "two@university.edu", interfaces.RoleInstitution)
	doc := seedDocument(t, reg, student.ID)
	other := seedDocument(t, reg, student.ID)

	for _, inst := range []*interfaces.Identity{inst1, inst2} {
		require.NoError(t, reg.VerificationRequests().Create(ctx, &interfaces.VerificationRequest{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			StudentID:     student.ID,
			InstitutionID: inst.ID,
			Status:        interfaces.StatusPending,
		}))
	}
	require.NoError(t, reg.VerificationRequests().Create(ctx, &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    other.ID,
		StudentID:     student.ID,
		InstitutionID: inst1.ID,
		Status:        interfaces.StatusPending,
	}))

	removed, err := reg.DeleteDocumentCascade(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = reg.Documents().GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// The other document and its request are untouched.
	remaining, err := reg.VerificationRequests().ListByStudent(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, other.ID, remaining[0].DocumentID)

	_, err = reg.DeleteDocumentCascade(ctx, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
