package provisioning

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemberRole is a principal's role inside a workspace
type MemberRole = string

const (
	// RoleOwner is granted to the principal a personal workspace is created for
	RoleOwner MemberRole = "owner"
)

const (
	// EntitlementStatusTrialing marks a time-boxed grant with no payment method
	EntitlementStatusTrialing = "trialing"
	// DefaultPlanTier is the tier granted during the trial
	DefaultPlanTier = "pro"
	// EnrollmentStatusActive marks an enrollment that still has steps to send
	EnrollmentStatusActive = "active"
)

// Workspace is the tenant container. OwnerID is only set on personal
// workspaces and is unique, one personal workspace per principal.
type Workspace struct {
	bun.BaseModel `bun:"table:workspaces,alias:ws"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Slug          string    `bun:"slug,notnull,unique" json:"slug"`
	OwnerID       string    `bun:"owner_id,nullzero,unique" json:"owner_id,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Membership links a principal to a workspace with a role
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:mbr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	WorkspaceID   uuid.UUID  `bun:"workspace_id,notnull,type:uuid,unique:workspace_principal" json:"workspace_id"`
	PrincipalID   string     `bun:"principal_id,notnull,unique:workspace_principal" json:"principal_id"`
	Role          MemberRole `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// TrialEntitlement grants paid-tier features until PeriodEnd. ExternalRef is
// a placeholder billing reference until a real subscription supersedes it.
type TrialEntitlement struct {
	bun.BaseModel `bun:"table:trial_entitlements,alias:te"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	WorkspaceID   uuid.UUID `bun:"workspace_id,notnull,type:uuid,unique" json:"workspace_id"`
	PlanTier      string    `bun:"plan_tier,notnull" json:"plan_tier"`
	Status        string    `bun:"status,notnull" json:"status"`
	ExternalRef   string    `bun:"external_ref,notnull,unique" json:"external_ref"`
	PeriodStart   time.Time `bun:"period_start,notnull" json:"period_start"`
	PeriodEnd     time.Time `bun:"period_end,notnull" json:"period_end"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// OnboardingCampaign is a sequence of lifecycle messages
type OnboardingCampaign struct {
	bun.BaseModel `bun:"table:onboarding_campaigns,alias:oc"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Key           string    `bun:"key,notnull,unique" json:"key"`
	Name          string    `bun:"name,notnull" json:"name"`
	Active        bool      `bun:"active,notnull" json:"active"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// OnboardingStep is one message of a campaign, fired DelayMinutes after the
// previous one.
type OnboardingStep struct {
	bun.BaseModel `bun:"table:onboarding_steps,alias:os"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	CampaignID    uuid.UUID `bun:"campaign_id,notnull,type:uuid,unique:campaign_sequence" json:"campaign_id"`
	Sequence      int       `bun:"sequence,notnull,unique:campaign_sequence" json:"sequence"`
	DelayMinutes  int       `bun:"delay_minutes,notnull" json:"delay_minutes"`
	Subject       string    `bun:"subject,notnull" json:"subject"`
	Template      string    `bun:"template,notnull" json:"template"`
}

// OnboardingEnrollment tracks a principal's progress through a campaign
type OnboardingEnrollment struct {
	bun.BaseModel `bun:"table:onboarding_enrollments,alias:oe"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	PrincipalID   string    `bun:"principal_id,notnull,unique:principal_campaign" json:"principal_id"`
	CampaignID    uuid.UUID `bun:"campaign_id,notnull,type:uuid,unique:principal_campaign" json:"campaign_id"`
	Status        string    `bun:"status,notnull" json:"status"`
	CurrentStepID uuid.UUID `bun:"current_step_id,notnull,type:uuid" json:"current_step_id"`
	NextFireAt    time.Time `bun:"next_fire_at,notnull" json:"next_fire_at"`
	StepsSent     int       `bun:"steps_sent,notnull" json:"steps_sent"`
	StartedAt     time.Time `bun:"started_at,notnull" json:"started_at"`
}
