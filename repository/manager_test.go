package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-workspace-auth"
	"github.com/goliatone/go-workspace-auth/provisioning"
)

func setupManager(t *testing.T) (RepositoryManager, *bun.DB) {
	t.Helper()

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db))

	m := NewRepositoryManager(db)
	require.NoError(t, m.Validate())
	return m, db
}

func TestEnsurePrincipalReportsCreatedOnce(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	principal := auth.Principal{ID: "user_01", Email: "a@b.com", Name: "Ada"}

	created, err := m.EnsurePrincipal(ctx, principal)
	require.NoError(t, err)
	assert.True(t, created)

	principal.Name = "Ada L."
	created, err = m.EnsurePrincipal(ctx, principal)
	require.NoError(t, err)
	assert.False(t, created)

	record, err := m.GetPrincipal(ctx, "user_01")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", record.DisplayName)
	assert.Equal(t, principal, record.Principal())
}

func TestEnsurePrincipalRequiresID(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.EnsurePrincipal(context.Background(), auth.Principal{Email: "a@b.com"})
	assert.ErrorIs(t, err, provisioning.ErrPrincipalRequired)
}

func TestGetPrincipalNotFound(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.GetPrincipal(context.Background(), "missing")
	assert.ErrorIs(t, err, provisioning.ErrNotFound)
}

func TestCreateWorkspaceEnforcesUniqueOwnerAndSlug(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &provisioning.Workspace{ID: uuid.New(), Name: "a's Workspace", Slug: "a-1234", OwnerID: "u1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateWorkspace(ctx, first))

	sameOwner := &provisioning.Workspace{ID: uuid.New(), Name: "dup", Slug: "a-5678", OwnerID: "u1", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, m.CreateWorkspace(ctx, sameOwner), provisioning.ErrConflict)

	sameSlug := &provisioning.Workspace{ID: uuid.New(), Name: "other", Slug: "a-1234", OwnerID: "u2", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, m.CreateWorkspace(ctx, sameSlug), provisioning.ErrConflict)

	shared := &provisioning.Workspace{ID: uuid.New(), Name: "team", Slug: "team-abcd", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateWorkspace(ctx, shared))
	shared2 := &provisioning.Workspace{ID: uuid.New(), Name: "team 2", Slug: "team-efgh", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateWorkspace(ctx, shared2), "workspaces without an owner must not collide")

	found, err := m.FindPersonalWorkspace(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	byID, err := m.GetWorkspace(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a-1234", byID.Slug)

	_, err = m.FindPersonalWorkspace(ctx, "nobody")
	assert.ErrorIs(t, err, provisioning.ErrNotFound)
}

func TestMembershipAndEntitlementConflicts(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	workspace := &provisioning.Workspace{ID: uuid.New(), Name: "w", Slug: "w-0000", OwnerID: "u1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateWorkspace(ctx, workspace))

	membership := &provisioning.Membership{ID: uuid.New(), WorkspaceID: workspace.ID, PrincipalID: "u1", Role: provisioning.RoleOwner, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateMembership(ctx, membership))
	again := *membership
	again.ID = uuid.New()
	assert.ErrorIs(t, m.CreateMembership(ctx, &again), provisioning.ErrConflict)

	trial := &provisioning.TrialEntitlement{
		ID:          uuid.New(),
		WorkspaceID: workspace.ID,
		PlanTier:    provisioning.DefaultPlanTier,
		Status:      provisioning.EntitlementStatusTrialing,
		ExternalRef: "trial_" + uuid.NewString(),
		PeriodStart: now,
		PeriodEnd:   now.Add(provisioning.DefaultTrialPeriod),
		CreatedAt:   now,
	}
	require.NoError(t, m.CreateTrialEntitlement(ctx, trial))
	second := *trial
	second.ID = uuid.New()
	second.ExternalRef = "trial_" + uuid.NewString()
	assert.ErrorIs(t, m.CreateTrialEntitlement(ctx, &second), provisioning.ErrConflict)

	found, err := m.FindEntitlement(ctx, workspace.ID)
	require.NoError(t, err)
	assert.Equal(t, trial.ExternalRef, found.ExternalRef)
	assert.Equal(t, int64(14*24*3600), found.PeriodEnd.Unix()-found.PeriodStart.Unix())

	_, err = m.FindEntitlement(ctx, uuid.New())
	assert.ErrorIs(t, err, provisioning.ErrNotFound)

	viaRepo, err := m.TrialEntitlements().GetByID(ctx, trial.ID.String())
	require.NoError(t, err)
	assert.Equal(t, workspace.ID, viaRepo.WorkspaceID)
}

func TestSeedOnboardingCampaignIsIdempotent(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	first, err := SeedOnboardingCampaign(ctx, db, "onboarding", "Onboarding", DefaultOnboardingSteps)
	require.NoError(t, err)
	second, err := SeedOnboardingCampaign(ctx, db, "onboarding", "Onboarding", DefaultOnboardingSteps)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	campaign, err := m.FindActiveCampaign(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, first.ID, campaign.ID)

	step, err := m.FindFirstStep(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Sequence)
	assert.Equal(t, DefaultOnboardingSteps[0].Subject, step.Subject)

	_, err = m.FindActiveCampaign(ctx, "missing")
	assert.ErrorIs(t, err, provisioning.ErrNotFound)

	_, err = m.FindFirstStep(ctx, uuid.New())
	assert.ErrorIs(t, err, provisioning.ErrNotFound)
}

func TestProvisionAgainstSQLite(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	_, err := SeedOnboardingCampaign(ctx, db, "onboarding", "Onboarding", DefaultOnboardingSteps)
	require.NoError(t, err)

	orch := provisioning.NewOrchestrator(m,
		provisioning.WithRetryPolicy(provisioning.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}),
	)
	principal := auth.Principal{ID: "u1", Email: "a@b.com"}

	report := orch.Provision(ctx, principal)
	require.Nil(t, report.Failure)
	assert.True(t, report.Completed())
	assert.Equal(t, provisioning.StateDone, report.State)
	assert.Regexp(t, `^a-[a-z0-9]{4}$`, report.WorkspaceSlug)

	again := orch.Provision(ctx, principal)
	assert.True(t, again.AlreadyProvisioned)
	assert.Nil(t, again.Failure)
	assert.Equal(t, report.WorkspaceID, again.WorkspaceID)

	count, err := db.NewSelect().Model((*provisioning.Workspace)(nil)).Where("owner_id = ?", "u1").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	enrollments, err := db.NewSelect().Model((*provisioning.OnboardingEnrollment)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, enrollments)
}

// flakyEntitlements fails trial inserts while down is set
type flakyEntitlements struct {
	RepositoryManager
	down bool
}

func (f *flakyEntitlements) CreateTrialEntitlement(ctx context.Context, entitlement *provisioning.TrialEntitlement) error {
	if f.down {
		return errors.New("billing table locked")
	}
	return f.RepositoryManager.CreateTrialEntitlement(ctx, entitlement)
}

func TestProvisionRerunRepairsAgainstSQLite(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	store := &flakyEntitlements{RepositoryManager: m, down: true}
	orch := provisioning.NewOrchestrator(store,
		provisioning.WithRetryPolicy(provisioning.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}),
	)
	principal := auth.Principal{ID: "u1", Email: "a@b.com"}

	first := orch.Provision(ctx, principal)
	require.NotNil(t, first.Failure)
	assert.Equal(t, provisioning.StepEntitlement, first.Failure.Step)

	_, err := m.FindEntitlement(ctx, first.WorkspaceID)
	assert.ErrorIs(t, err, provisioning.ErrNotFound)

	store.down = false
	rerun := orch.Provision(ctx, principal)
	require.Nil(t, rerun.Failure)
	assert.True(t, rerun.Resumed)
	assert.True(t, rerun.Completed())
	assert.Equal(t, first.WorkspaceID, rerun.WorkspaceID)

	trial, err := m.FindEntitlement(ctx, first.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, rerun.EntitlementID, trial.ID)

	memberships, err := db.NewSelect().Model((*provisioning.Membership)(nil)).Where("principal_id = ?", "u1").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, memberships)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: workspaces.slug")))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.Error(t, err)
}

type fakeSetNX struct {
	keys map[string]bool
	err  error
}

func (f *fakeSetNX) SetNX(_ context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisGuardAcquiresOncePerPrincipal(t *testing.T) {
	client := &fakeSetNX{keys: map[string]bool{}}
	guard := NewRedisGuard(client, 0)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = guard.Acquire(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, client.keys["provisioning:principal:u1"])
}

func TestRedisGuardPropagatesErrors(t *testing.T) {
	guard := NewRedisGuard(&fakeSetNX{err: errors.New("dial tcp: refused")}, time.Minute)

	ok, err := guard.Acquire(context.Background(), "u1")
	assert.Error(t, err)
	assert.False(t, ok)
}
