// Package attestation runs the verification request state machine: a
// student asks an institution to vouch for a document, the institution
// approves or rejects, and either resolution deletes the request row.
// Pending rows are the only persisted state.
package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/metrics"
	"github.com/google/uuid"
)

// Workflow implements the verification request transitions over the
// registry.
type Workflow struct {
	registry interfaces.Registry
	log      *slog.Logger
}

// New creates a workflow over the registry.
func New(registry interfaces.Registry, log *slog.Logger) *Workflow {
	return &Workflow{registry: registry, log: log}
}

// SubmitRequest is the input of one verification submission.
type SubmitRequest struct {
	DocumentID string
	// InstitutionEmail names the institution asked to attest.
	InstitutionEmail string
}

// Submit creates a pending verification request. The actor must be a
// student owning the document; the institution is resolved by email and must
// hold the institution role. A second pending request for the same triple is
// ErrConflict.
func (w *Workflow) Submit(ctx context.Context, actor *interfaces.Identity, req SubmitRequest) (*interfaces.VerificationRequest, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	if actor.Role != interfaces.RoleStudent {
		return nil, fmt.Errorf("%w: only students submit verification requests", interfaces.ErrForbidden)
	}
	if req.DocumentID == "" || req.InstitutionEmail == "" {
		return nil, fmt.Errorf("%w: document id and institution email are required", interfaces.ErrInvalidRequest)
	}

	doc, err := w.registry.Documents().GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != actor.ID {
		return nil, fmt.Errorf("%w: not the document owner", interfaces.ErrForbidden)
	}

	institution, err := w.registry.Identities().GetByEmail(ctx, req.InstitutionEmail)
	if err != nil {
		return nil, fmt.Errorf("resolving institution: %w", err)
	}
	if institution.Role != interfaces.RoleInstitution {
		return nil, fmt.Errorf("%w: %s is not an institution", interfaces.ErrInvalidRequest, req.InstitutionEmail)
	}

	_, err = w.registry.VerificationRequests().FindPending(ctx, doc.ID, actor.ID, institution.ID)
	if err == nil {
		return nil, fmt.Errorf("%w: request already pending", interfaces.ErrConflict)
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("checking for pending request: %w", err)
	}

	request := &interfaces.VerificationRequest{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		StudentID:     actor.ID,
		InstitutionID: institution.ID,
		Status:        interfaces.StatusPending,
	}

	if err := w.registry.VerificationRequests().Create(ctx, request); err != nil {
		return nil, err
	}

	metrics.VerificationRequests.WithLabelValues("submitted").Inc()
	w.log.Info("Submitted verification request",
		slog.String("request_id", request.ID),
		slog.String("document_id", doc.ID),
		slog.String("institution_id", institution.ID))

	return request, nil
}

// Resolution is what a resolved request returns to the caller. The request
// row is gone by the time a Resolution exists; Remarks travel only here.
type Resolution struct {
	Request *interfaces.VerificationRequest
	Outcome string
	Remarks string
}

// Approve attests the document and deletes the request. Only the named
// institution may approve; the document's AttestedBy becomes the
// institution's display name before the row is removed, so a crash between
// the two steps leaves an attested document with a stale request, never an
// approved-but-unattested document.
func (w *Workflow) Approve(ctx context.Context, actor *interfaces.Identity, requestID, remarks string) (*Resolution, error) {
	request, err := w.loadForResolution(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	if err := w.registry.Documents().SetAttestedBy(ctx, request.DocumentID, actor.Name); err != nil {
		return nil, fmt.Errorf("attesting document: %w", err)
	}

	if err := w.registry.VerificationRequests().Delete(ctx, request.ID); err != nil {
		return nil, fmt.Errorf("removing resolved request: %w", err)
	}

	metrics.VerificationRequests.WithLabelValues("approved").Inc()
	w.log.Info("Approved verification request",
		slog.String("request_id", request.ID),
		slog.String("document_id", request.DocumentID))

	return &Resolution{Request: request, Outcome: "approved", Remarks: remarks}, nil
}

// Reject deletes the request without touching the document.
func (w *Workflow) Reject(ctx context.Context, actor *interfaces.Identity, requestID, remarks string) (*Resolution, error) {
	request, err := w.loadForResolution(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	if err := w.registry.VerificationRequests().Delete(ctx, request.ID); err != nil {
		return nil, fmt.Errorf("removing resolved request: %w", err)
	}

	metrics.VerificationRequests.WithLabelValues("rejected").Inc()
	w.log.Info("Rejected verification request",
		slog.String("request_id", request.ID),
		slog.String("document_id", request.DocumentID))

	return &Resolution{Request: request, Outcome: "rejected", Remarks: remarks}, nil
}

// ListForInstitution returns the actor's review queue.
func (w *Workflow) ListForInstitution(ctx context.Context, actor *interfaces.Identity) ([]*interfaces.VerificationRequest, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	if actor.Role != interfaces.RoleInstitution {
		return nil, fmt.Errorf("%w: not an institution", interfaces.ErrForbidden)
	}

	return w.registry.VerificationRequests().ListByInstitution(ctx, actor.ID)
}

// ListForStudent returns the actor's outstanding submissions.
func (w *Workflow) ListForStudent(ctx context.Context, actor *interfaces.Identity) ([]*interfaces.VerificationRequest, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	return w.registry.VerificationRequests().ListByStudent(ctx, actor.ID)
}

// loadForResolution fetches the request and checks the actor is the named
// institution.
func (w *Workflow) loadForResolution(ctx context.Context, actor *interfaces.Identity, requestID string) (*interfaces.VerificationRequest, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	if actor.Role != interfaces.RoleInstitution {
		return nil, fmt.Errorf("%w: only institutions resolve requests", interfaces.ErrForbidden)
	}

	request, err := w.registry.VerificationRequests().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.InstitutionID != actor.ID {
		return nil, fmt.Errorf("%w: request names another institution", interfaces.ErrForbidden)
	}

	return request, nil
}
