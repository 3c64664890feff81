package repository

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

func models() []any {
	return []any{
		(*PrincipalRecord)(nil),
		(*provisioning.Workspace)(nil),
		(*provisioning.Membership)(nil),
		(*provisioning.TrialEntitlement)(nil),
		(*provisioning.OnboardingCampaign)(nil),
		(*provisioning.OnboardingStep)(nil),
		(*provisioning.OnboardingEnrollment)(nil),
	}
}

// Migrate creates every table with its unique constraints. It is safe to
// run on every start.
func Migrate(ctx context.Context, db bun.IDB) error {
	for _, model := range models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table").
				WithMetadata(map[string]any{"model": model})
		}
	}
	return nil
}

// CampaignStep describes one message of a seeded campaign
type CampaignStep struct {
	DelayMinutes int
	Subject      string
	Template     string
}

// DefaultOnboardingSteps are seeded for the onboarding campaign
var DefaultOnboardingSteps = []CampaignStep{
	{DelayMinutes: 0, Subject: "Welcome to your workspace", Template: "onboarding/welcome"},
	{DelayMinutes: 24 * 60, Subject: "Invite your team", Template: "onboarding/invite"},
	{DelayMinutes: 3 * 24 * 60, Subject: "Getting the most out of your trial", Template: "onboarding/tips"},
}

// SeedOnboardingCampaign creates the campaign identified by key with steps
// unless it already exists.
func SeedOnboardingCampaign(ctx context.Context, db *bun.DB, key, name string, steps []CampaignStep) (*provisioning.OnboardingCampaign, error) {
	campaign := &provisioning.OnboardingCampaign{}
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(campaign).Where("?TableAlias.key = ?", key).Limit(1).Scan(ctx)
		if err == nil {
			return nil
		}
		if mapped := mapError("seed campaign", err); !errors.Is(mapped, provisioning.ErrNotFound) {
			return mapped
		}

		*campaign = provisioning.OnboardingCampaign{
			ID:        uuid.New(),
			Key:       key,
			Name:      name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(campaign).Exec(ctx); err != nil {
			return err
		}

		for i, step := range steps {
			record := &provisioning.OnboardingStep{
				ID:           uuid.New(),
				CampaignID:   campaign.ID,
				Sequence:     i + 1,
				DelayMinutes: step.DelayMinutes,
				Subject:      step.Subject,
				Template:     step.Template,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError("seed campaign", err)
	}
	return campaign, nil
}
