package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/certvault/custody-backend/cryptoutils"
	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/keyvault"
	"github.com/certvault/custody-backend/registry"
	"github.com/certvault/custody-backend/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	pipeline *Pipeline
	registry *registry.MemoryRegistry
	keys     *keyvault.Vault
	blobs    *storage.MemoryBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seed := bytes.Repeat([]byte{0x42}, 32)
	sealer, err := cryptoutils.NewSealer(seed)
	require.NoError(t, err)

	reg := registry.NewMemoryRegistry()
	keys := keyvault.New(keyvault.NewMemoryStore(), sealer, log)
	blobs := storage.NewMemoryBackend("test")

	return &testEnv{
		pipeline: New(reg, keys, blobs, log),
		registry: reg,
		keys:     keys,
		blobs:    blobs,
	}
}

func (e *testEnv) addIdentity(t *testing.T, email string, role interfaces.Role) *interfaces.Identity {
	t.Helper()
	identity, err := e.registry.Identities().Upsert(context.Background(), &interfaces.Identity{
		ID:    uuid.NewString(),
		Email: email,
		Name:  "Name of " + email,
		Role:  role,
	})
	require.NoError(t, err)
	return identity
}

func TestPipeline_IssueAndView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)
	institution := env.addIdentity(t, "registrar@uni.edu", interfaces.RoleInstitution)
	stranger := env.addIdentity(t, "r@random.org", interfaces.RoleStudent)

	content := []byte("BSc certificate body")

	doc, err := env.pipeline.Issue(ctx, institution, IssueRequest{
		OwnerEmail: "s@x.edu",
		Title:      "BSc",
		Plaintext:  content,
	})
	require.NoError(t, err)
	assert.Equal(t, student.ID, doc.OwnerID)
	assert.Equal(t, institution.Name, doc.AttestedBy)
	assert.NotEmpty(t, doc.ContentID)
	assert.Equal(t, cryptoutils.AlgorithmAESGCM, doc.Encryption.Algorithm)

	// Owner decrypts and gets the exact bytes back.
	result, err := env.pipeline.View(ctx, student, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, content, result.Plaintext)

	// Lookup by content id works the same way.
	byContent, err := env.pipeline.ViewByContentID(ctx, student, doc.ContentID)
	require.NoError(t, err)
	assert.Equal(t, content, byContent.Plaintext)

	// A third party is refused.
	_, err = env.pipeline.View(ctx, stranger, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)
}

func TestPipeline_IssueAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)
	other := env.addIdentity(t, "other@x.edu", interfaces.RoleStudent)
	employer := env.addIdentity(t, "hr@corp.com", interfaces.RoleEmployer)

	req := IssueRequest{OwnerEmail: "s@x.edu", Title: "Transcript", Plaintext: []byte("x")}

	_, err := env.pipeline.Issue(ctx, other, req)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	_, err = env.pipeline.Issue(ctx, employer, req)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	_, err = env.pipeline.Issue(ctx, other, IssueRequest{
		OwnerEmail: "nobody@x.edu", Title: "T", Plaintext: []byte("x"),
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = env.pipeline.Issue(ctx, other, IssueRequest{OwnerEmail: "other@x.edu", Plaintext: []byte("x")})
	assert.ErrorIs(t, err, interfaces.ErrInvalidRequest)
}

func TestPipeline_SelfUploadLeavesUnattested(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)

	doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu",
		Title:      "Self upload",
		Plaintext:  []byte("mine"),
	})
	require.NoError(t, err)
	assert.Empty(t, doc.AttestedBy)
	assert.False(t, doc.Attested())
}

func TestPipeline_InstitutionReviewAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)
	reviewer := env.addIdentity(t, "review@uni.edu", interfaces.RoleInstitution)
	outsider := env.addIdentity(t, "other@uni.edu", interfaces.RoleInstitution)

	doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Diploma", Plaintext: []byte("diploma"),
	})
	require.NoError(t, err)

	// No pending request yet: even an institution is refused.
	_, err = env.pipeline.View(ctx, reviewer, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	require.NoError(t, env.registry.VerificationRequests().Create(ctx, &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		StudentID:     student.ID,
		InstitutionID: reviewer.ID,
		Status:        interfaces.StatusPending,
	}))

	result, err := env.pipeline.View(ctx, reviewer, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("diploma"), result.Plaintext)

	// The grant is scoped to the requested institution.
	_, err = env.pipeline.View(ctx, outsider, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)
}

func TestPipeline_ViewAllSkipsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)

	contents := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	var docs []*interfaces.Document
	for i, c := range contents {
		doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
			OwnerEmail: "s@x.edu",
			Title:      string(rune('A' + i)),
			Plaintext:  c,
		})
		require.NoError(t, err)
		docs = append(docs, doc)
	}

	// Break the middle document by pointing it at a missing envelope.
	broken, err := env.registry.Documents().GetByID(ctx, docs[1].ID)
	require.NoError(t, err)
	require.NoError(t, env.registry.Documents().Delete(ctx, broken.ID))
	broken.ContentID = interfaces.ContentID("missing-envelope")
	require.NoError(t, env.registry.Documents().Create(ctx, broken))

	result, err := env.pipeline.ViewAll(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Len(t, result.Items, 2)

	var got [][]byte
	for _, item := range result.Items {
		got = append(got, item.Plaintext)
	}
	assert.ElementsMatch(t, [][]byte{[]byte("one"), []byte("three")}, got)
}

func TestPipeline_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)
	institution := env.addIdentity(t, "uni@uni.edu", interfaces.RoleInstitution)
	other := env.addIdentity(t, "other@x.edu", interfaces.RoleStudent)

	doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Doomed", Plaintext: []byte("bye"),
	})
	require.NoError(t, err)

	require.NoError(t, env.registry.VerificationRequests().Create(ctx, &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		StudentID:     student.ID,
		InstitutionID: institution.ID,
		Status:        interfaces.StatusPending,
	}))

	err = env.pipeline.Delete(ctx, other, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	err = env.pipeline.Delete(ctx, institution, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)

	require.NoError(t, env.pipeline.Delete(ctx, student, doc.ID))

	_, err = env.registry.Documents().GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	reqs, err := env.registry.VerificationRequests().ListByStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	// The envelope outlives the document.
	_, err = env.blobs.Get(ctx, doc.ContentID)
	assert.NoError(t, err)

	err = env.pipeline.Delete(ctx, student, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestPipeline_ParamFallbackFromRegistry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)

	doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Sparse envelope", Plaintext: []byte("fallback works"),
	})
	require.NoError(t, err)

	// Rewrite the stored envelope without its embedded parameters; the
	// registry copy must carry the decrypt.
	payload, err := env.blobs.Get(ctx, doc.ContentID)
	require.NoError(t, err)
	envelope, err := interfaces.DecodeEnvelope(payload)
	require.NoError(t, err)

	sparse := &interfaces.Envelope{EncryptedData: envelope.EncryptedData}
	sparseBytes, err := sparse.Encode()
	require.NoError(t, err)
	newID, err := env.blobs.Put(ctx, sparseBytes)
	require.NoError(t, err)

	require.NoError(t, env.registry.Documents().Delete(ctx, doc.ID))
	doc.ContentID = newID
	require.NoError(t, env.registry.Documents().Create(ctx, doc))

	result, err := env.pipeline.View(ctx, student, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("fallback works"), result.Plaintext)
}

func TestPipeline_EnvelopeOwnerMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)

	doc, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Swapped", Plaintext: []byte("secret"),
	})
	require.NoError(t, err)

	payload, err := env.blobs.Get(ctx, doc.ContentID)
	require.NoError(t, err)
	envelope, err := interfaces.DecodeEnvelope(payload)
	require.NoError(t, err)

	envelope.OwnerID = "someone-else"
	swapped, err := envelope.Encode()
	require.NoError(t, err)
	newID, err := env.blobs.Put(ctx, swapped)
	require.NoError(t, err)

	require.NoError(t, env.registry.Documents().Delete(ctx, doc.ID))
	doc.ContentID = newID
	require.NoError(t, env.registry.Documents().Create(ctx, doc))

	_, err = env.pipeline.View(ctx, student, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrIntegrityFailure)
}

func TestPipeline_Dashboards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student := env.addIdentity(t, "s@x.edu", interfaces.RoleStudent)
	institution := env.addIdentity(t, "uni@uni.edu", interfaces.RoleInstitution)

	_, err := env.pipeline.Issue(ctx, institution, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Attested", Plaintext: []byte("a"),
	})
	require.NoError(t, err)
	plain, err := env.pipeline.Issue(ctx, student, IssueRequest{
		OwnerEmail: "s@x.edu", Title: "Plain", Plaintext: []byte("b"),
	})
	require.NoError(t, err)

	require.NoError(t, env.registry.VerificationRequests().Create(ctx, &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    plain.ID,
		StudentID:     student.ID,
		InstitutionID: institution.ID,
		Status:        interfaces.StatusPending,
	}))

	studentSummary, err := env.pipeline.SummarizeStudent(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, 2, studentSummary.Documents)
	assert.Equal(t, 1, studentSummary.AttestedDocuments)
	assert.Equal(t, 1, studentSummary.PendingRequests)

	instSummary, err := env.pipeline.SummarizeInstitution(ctx, institution)
	require.NoError(t, err)
	assert.Equal(t, 1, instSummary.PendingRequests)

	_, err = env.pipeline.SummarizeInstitution(ctx, student)
	assert.ErrorIs(t, err, interfaces.ErrForbidden)
}
