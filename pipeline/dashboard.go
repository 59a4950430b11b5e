package pipeline

import (
	"context"
	"fmt"

	"github.com/certvault/custody-backend/interfaces"
)

// StudentSummary is the student dashboard: document counts by attestation
// state plus the student's outstanding verification requests.
type StudentSummary struct {
	Documents         int `json:"documents"`
	AttestedDocuments int `json:"attestedDocuments"`
	PendingRequests   int `json:"pendingRequests"`
}

// InstitutionSummary is the institution dashboard: the size of its review
// queue.
type InstitutionSummary struct {
	PendingRequests int `json:"pendingRequests"`
}

// SummarizeStudent composes the registry counts backing the student
// dashboard.
func (p *Pipeline) SummarizeStudent(ctx context.Context, actor *interfaces.Identity) (*StudentSummary, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}

	total, err := p.registry.Documents().CountByOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	attested, err := p.registry.Documents().CountAttestedByOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("counting attested documents: %w", err)
	}

	pending, err := p.registry.VerificationRequests().ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}

	return &StudentSummary{
		Documents:         total,
		AttestedDocuments: attested,
		PendingRequests:   len(pending),
	}, nil
}

// SummarizeInstitution composes the counts backing the institution
// dashboard.
func (p *Pipeline) SummarizeInstitution(ctx context.Context, actor *interfaces.Identity) (*InstitutionSummary, error) {
	if actor == nil {
		return nil, interfaces.ErrUnauthenticated
	}
	if actor.Role != interfaces.RoleInstitution {
		return nil, fmt.Errorf("%w: not an institution", interfaces.ErrForbidden)
	}

	pending, err := p.registry.VerificationRequests().CountByInstitution(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("counting requests: %w", err)
	}

	return &InstitutionSummary{PendingRequests: pending}, nil
}
