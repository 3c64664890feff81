package provisioning

import (
	"context"

	"github.com/google/uuid"
)

// Store is the set of writes and lookups the saga performs. Inserts must
// wrap ErrConflict on uniqueness violations and lookups must wrap
// ErrNotFound when nothing matches.
type Store interface {
	CreateWorkspace(ctx context.Context, workspace *Workspace) error
	CreateMembership(ctx context.Context, membership *Membership) error
	CreateTrialEntitlement(ctx context.Context, entitlement *TrialEntitlement) error
	CreateEnrollment(ctx context.Context, enrollment *OnboardingEnrollment) error

	FindPersonalWorkspace(ctx context.Context, principalID string) (*Workspace, error)
	FindActiveCampaign(ctx context.Context, key string) (*OnboardingCampaign, error)
	FindFirstStep(ctx context.Context, campaignID uuid.UUID) (*OnboardingStep, error)
}

// Guard deduplicates trigger deliveries for the same principal. Acquire
// returns false when a run for principalID was already started.
type Guard interface {
	Acquire(ctx context.Context, principalID string) (bool, error)
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, principalID string) (bool, error)

// Acquire implements Guard.
func (f GuardFunc) Acquire(ctx context.Context, principalID string) (bool, error) {
	return f(ctx, principalID)
}
