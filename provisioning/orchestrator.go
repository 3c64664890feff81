package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	auth "github.com/goliatone/go-workspace-auth"
	"github.com/goliatone/go-workspace-auth/slug"
)

const (
	// DefaultTrialPeriod is the fixed length of the trial entitlement
	DefaultTrialPeriod = 14 * 24 * time.Hour
	// DefaultCampaignKey identifies the onboarding campaign new principals join
	DefaultCampaignKey = "onboarding"

	defaultWorkspaceName = "My Workspace"
	trialRefPrefix       = "trial_"
)

// Report describes the outcome of one provisioning run.
type Report struct {
	PrincipalID        string
	State              State
	WorkspaceID        uuid.UUID
	WorkspaceSlug      string
	MembershipID       uuid.UUID
	EntitlementID      uuid.UUID
	EnrollmentID       uuid.UUID
	// Resumed is set when the personal workspace came from an earlier run
	// and this run filled in the rows that run left missing.
	Resumed bool
	// AlreadyProvisioned is set when every mandatory row already existed.
	AlreadyProvisioned bool
	// Failure is set when a mandatory step exhausted its retries.
	Failure *StepError
	// OnboardingErr is set when the best-effort enrollment failed.
	OnboardingErr *StepError
}

// Completed reports whether this run left the workspace, membership and
// trial in place and wrote at least one of them.
func (r Report) Completed() bool {
	return r.Failure == nil && !r.AlreadyProvisioned && r.State.Terminal()
}

func (r *Report) advance(to State) error {
	if !r.State.CanTransition(to) {
		return fmt.Errorf("invalid provisioning transition %s -> %s", r.State, to)
	}
	r.State = to
	return nil
}

// Orchestrator runs the one-time bootstrap for a newly created principal:
// personal workspace, owner membership, trial entitlement and, best-effort,
// onboarding enrollment. Steps run in order because each one needs the ids
// produced before it. Nothing is rolled back when a later step fails.
type Orchestrator struct {
	store       Store
	slugs       *slug.Generator
	logger      auth.Logger
	activity    auth.ActivitySink
	guard       Guard
	policy      RetryPolicy
	trialPeriod time.Duration
	planTier    string
	campaignKey string
	now         func() time.Time
	newID       func() uuid.UUID

	wg sync.WaitGroup
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used for retries and failures.
func WithLogger(logger auth.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = auth.NormalizeLogger(logger)
	}
}

// WithActivitySink sets the sink notified when a run finishes.
func WithActivitySink(sink auth.ActivitySink) Option {
	return func(o *Orchestrator) {
		o.activity = sink
	}
}

// WithGuard enables duplicate trigger suppression.
func WithGuard(guard Guard) Option {
	return func(o *Orchestrator) {
		o.guard = guard
	}
}

// WithRetryPolicy overrides the policy for mandatory steps.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy.normalize()
	}
}

// WithTrialPeriod overrides the trial length.
func WithTrialPeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.trialPeriod = d
		}
	}
}

// WithPlanTier overrides the tier granted during the trial.
func WithPlanTier(tier string) Option {
	return func(o *Orchestrator) {
		if tier != "" {
			o.planTier = tier
		}
	}
}

// WithCampaignKey overrides the onboarding campaign identifier.
func WithCampaignKey(key string) Option {
	return func(o *Orchestrator) {
		if key != "" {
			o.campaignKey = key
		}
	}
}

// WithSlugGenerator overrides the workspace slug generator.
func WithSlugGenerator(g *slug.Generator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.slugs = g
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithIDGenerator injects the id source for new records.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NewOrchestrator creates an Orchestrator writing through store.
func NewOrchestrator(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		slugs:       slug.New(),
		logger:      auth.DefaultLogger(),
		policy:      DefaultRetryPolicy,
		trialPeriod: DefaultTrialPeriod,
		planTier:    DefaultPlanTier,
		campaignKey: DefaultCampaignKey,
		now:         time.Now,
		newID:       uuid.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// ProvisionAsync runs Provision on a background context, detached from the
// request that created the principal. Use Wait to drain in-flight runs.
func (o *Orchestrator) ProvisionAsync(principal auth.Principal) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Provision(context.Background(), principal)
	}()
}

// Wait blocks until every run started by ProvisionAsync has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Provision runs the saga for principal. It never returns an error: mandatory
// step failures are logged with full context and reported, and the principal
// is left for the lazy repair path to pick up.
func (o *Orchestrator) Provision(ctx context.Context, principal auth.Principal) Report {
	report := Report{
		PrincipalID: principal.ID,
		State:       StateNotStarted,
	}

	if principal.ID == "" {
		report.Failure = &StepError{Step: StepWorkspace, Err: ErrPrincipalRequired}
		o.logger.Error("provisioning rejected trigger without principal id", "email", principal.Email)
		return report
	}

	if o.guard != nil {
		acquired, err := o.guard.Acquire(ctx, principal.ID)
		switch {
		case err != nil:
			o.logger.Error("provisioning guard unavailable, relying on unique constraints",
				"principal_id", principal.ID,
				"error", err,
			)
		case !acquired:
			report.AlreadyProvisioned = true
			o.logger.Info("provisioning already started for principal", "principal_id", principal.ID)
			o.notify(ctx, auth.ActivityEventProvisioningDuplicated, report, nil)
			return report
		}
	}

	now := o.now().UTC()

	workspace, adopted, err := o.createWorkspace(ctx, principal, now)
	if err != nil {
		return o.fail(ctx, report, principal, err)
	}
	report.WorkspaceID = workspace.ID
	report.WorkspaceSlug = workspace.Slug
	o.mustAdvance(&report, StateWorkspaceCreated)

	membership := &Membership{
		ID:          o.newID(),
		WorkspaceID: workspace.ID,
		PrincipalID: principal.ID,
		Role:        RoleOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var membershipInserted bool
	if err := o.write(ctx, StepMembership, func(ctx context.Context) error {
		return insertOnce(o.store.CreateMembership(ctx, membership), &membershipInserted)
	}); err != nil {
		return o.fail(ctx, report, principal, err)
	}
	if membershipInserted {
		report.MembershipID = membership.ID
	}
	o.mustAdvance(&report, StateMembershipCreated)

	entitlement := &TrialEntitlement{
		ID:          o.newID(),
		WorkspaceID: workspace.ID,
		PlanTier:    o.planTier,
		Status:      EntitlementStatusTrialing,
		ExternalRef: trialRefPrefix + o.newID().String(),
		PeriodStart: now,
		PeriodEnd:   now.Add(o.trialPeriod),
		CreatedAt:   now,
	}
	var entitlementInserted bool
	if err := o.write(ctx, StepEntitlement, func(ctx context.Context) error {
		return insertOnce(o.store.CreateTrialEntitlement(ctx, entitlement), &entitlementInserted)
	}); err != nil {
		return o.fail(ctx, report, principal, err)
	}
	if entitlementInserted {
		report.EntitlementID = entitlement.ID
	}
	o.mustAdvance(&report, StateEntitlementCreated)

	if adopted {
		if membershipInserted || entitlementInserted {
			report.Resumed = true
		} else {
			report.AlreadyProvisioned = true
		}
	}

	enrollmentID, stepErr := o.enrollOnboarding(ctx, principal, now)
	if stepErr != nil {
		report.OnboardingErr = stepErr
	}
	if enrollmentID != uuid.Nil {
		report.EnrollmentID = enrollmentID
		o.mustAdvance(&report, StateOnboardingEnrolled)
	} else {
		o.mustAdvance(&report, StateOnboardingSkipped)
	}
	o.mustAdvance(&report, StateDone)

	if report.AlreadyProvisioned {
		o.logger.Info("principal already has a personal workspace", "principal_id", principal.ID)
		o.notify(ctx, auth.ActivityEventProvisioningDuplicated, report, nil)
		return report
	}

	o.logger.Info("provisioning completed",
		"principal_id", principal.ID,
		"workspace_id", workspace.ID.String(),
		"slug", workspace.Slug,
		"state", report.State,
		"resumed", report.Resumed,
	)
	o.notify(ctx, auth.ActivityEventProvisioningCompleted, report, nil)

	return report
}

// createWorkspace inserts the personal workspace. When the principal already
// owns one, left behind by an earlier or concurrent run, that workspace is
// returned with adopted set so the remaining steps can complete it.
func (o *Orchestrator) createWorkspace(ctx context.Context, principal auth.Principal, now time.Time) (workspace *Workspace, adopted bool, err error) {
	seed := principal.Email
	if seed == "" {
		seed = principal.ID
	}

	slugValue, err := o.slugs.Generate(seed)
	if err != nil {
		return nil, false, &StepError{Step: StepWorkspace, Err: err}
	}

	workspace = &Workspace{
		ID:        o.newID(),
		Name:      WorkspaceName(principal),
		Slug:      slugValue,
		OwnerID:   principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = o.write(ctx, StepWorkspace, func(ctx context.Context) error {
		err := o.store.CreateWorkspace(ctx, workspace)
		if !errors.Is(err, ErrConflict) {
			return err
		}

		existing, lookupErr := o.store.FindPersonalWorkspace(ctx, principal.ID)
		switch {
		case lookupErr == nil && existing.ID == workspace.ID:
			// an earlier attempt committed before reporting failure
			return nil
		case lookupErr == nil:
			workspace = existing
			adopted = true
			return nil
		case errors.Is(lookupErr, ErrNotFound):
			// slug collision, try again with a fresh suffix
			fresh, slugErr := o.slugs.Generate(seed)
			if slugErr != nil {
				return Permanent(slugErr)
			}
			workspace.Slug = fresh
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return workspace, adopted, nil
}

// enrollOnboarding is best-effort: it reports failures but never lets one
// escape, including panics from the store.
func (o *Orchestrator) enrollOnboarding(ctx context.Context, principal auth.Principal, now time.Time) (id uuid.UUID, stepErr *StepError) {
	defer func() {
		if r := recover(); r != nil {
			id = uuid.Nil
			stepErr = &StepError{Step: StepOnboarding, Attempts: 1, Err: fmt.Errorf("panic: %v", r)}
			o.logger.Error("onboarding enrollment panicked", "principal_id", principal.ID, "error", stepErr.Err)
		}
	}()

	campaign, err := o.store.FindActiveCampaign(ctx, o.campaignKey)
	if err != nil {
		return uuid.Nil, o.skipOnboarding(principal, "campaign lookup", err)
	}

	step, err := o.store.FindFirstStep(ctx, campaign.ID)
	if err != nil {
		return uuid.Nil, o.skipOnboarding(principal, "first step lookup", err)
	}

	enrollment := &OnboardingEnrollment{
		ID:            o.newID(),
		PrincipalID:   principal.ID,
		CampaignID:    campaign.ID,
		Status:        EnrollmentStatusActive,
		CurrentStepID: step.ID,
		NextFireAt:    now.Add(time.Duration(step.DelayMinutes) * time.Minute),
		StepsSent:     0,
		StartedAt:     now,
	}

	if err := o.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, ErrConflict) {
			o.logger.Info("principal already enrolled in onboarding", "principal_id", principal.ID, "campaign", o.campaignKey)
			return uuid.Nil, nil
		}
		return uuid.Nil, o.skipOnboarding(principal, "enrollment insert", err)
	}

	return enrollment.ID, nil
}

func (o *Orchestrator) skipOnboarding(principal auth.Principal, stage string, err error) *StepError {
	if errors.Is(err, ErrNotFound) {
		o.logger.Info("onboarding skipped", "principal_id", principal.ID, "campaign", o.campaignKey, "reason", stage+" found nothing")
		return nil
	}
	o.logger.Error("onboarding enrollment failed",
		"principal_id", principal.ID,
		"campaign", o.campaignKey,
		"stage", stage,
		"error", err,
	)
	return &StepError{Step: StepOnboarding, Attempts: 1, Err: err}
}

func (o *Orchestrator) write(ctx context.Context, step Step, op func(context.Context) error) error {
	attempts := 0
	_, err := Retry(ctx, o.policy, string(step), o.logger, func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, op(ctx)
	})
	if err != nil {
		return &StepError{Step: step, Attempts: attempts, Err: err}
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, report Report, principal auth.Principal, err error) Report {
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		stepErr = &StepError{Step: StepWorkspace, Err: err}
	}
	report.Failure = stepErr

	o.logger.Error("provisioning failed, principal left without a complete workspace",
		"principal_id", principal.ID,
		"email", principal.Email,
		"step", stepErr.Step,
		"attempts", stepErr.Attempts,
		"state", report.State,
		"workspace_id", report.WorkspaceID.String(),
		"error", stepErr.Err,
	)
	o.notify(ctx, auth.ActivityEventProvisioningFailed, report, stepErr)

	return report
}

func (o *Orchestrator) mustAdvance(report *Report, to State) {
	if err := report.advance(to); err != nil {
		o.logger.Error("provisioning state machine", "principal_id", report.PrincipalID, "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, eventType auth.ActivityEventType, report Report, stepErr *StepError) {
	metadata := map[string]any{
		"state": string(report.State),
	}
	if report.WorkspaceSlug != "" {
		metadata["slug"] = report.WorkspaceSlug
	}
	if stepErr != nil {
		metadata["step"] = string(stepErr.Step)
		metadata["error"] = stepErr.Err.Error()
	}

	var workspaceID string
	if report.WorkspaceID != uuid.Nil {
		workspaceID = report.WorkspaceID.String()
	}

	auth.RecordActivity(ctx, o.activity, o.logger, auth.ActivityEvent{
		EventType:   eventType,
		PrincipalID: report.PrincipalID,
		WorkspaceID: workspaceID,
		Metadata:    metadata,
		OccurredAt:  o.now(),
	})
}

// WorkspaceName is the display name of a principal's personal workspace.
func WorkspaceName(principal auth.Principal) string {
	owner := principal.Name
	if owner == "" {
		owner = principal.LocalPart()
	}
	if owner == "" {
		return defaultWorkspaceName
	}
	return owner + "'s Workspace"
}

// insertOnce treats a uniqueness conflict as the row already being there.
// inserted is only set when this call wrote the row.
func insertOnce(err error, inserted *bool) error {
	if err == nil {
		*inserted = true
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}
