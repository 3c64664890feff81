package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-workspace-auth"
	"github.com/goliatone/go-workspace-auth/provisioning"
)

// RepositoryManager exposes the storage used by login and provisioning
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	provisioning.Store

	Workspaces() repository.Repository[*provisioning.Workspace]
	TrialEntitlements() repository.Repository[*provisioning.TrialEntitlement]
	GetWorkspace(ctx context.Context, id uuid.UUID) (*provisioning.Workspace, error)

	// EnsurePrincipal records a verified identity and reports whether this
	// was the first time it was seen.
	EnsurePrincipal(ctx context.Context, principal auth.Principal) (bool, error)
	GetPrincipal(ctx context.Context, id string) (*PrincipalRecord, error)
	FindEntitlement(ctx context.Context, workspaceID uuid.UUID) (*provisioning.TrialEntitlement, error)
}

func NewWorkspacesRepository(db *bun.DB) repository.Repository[*provisioning.Workspace] {
	return repository.NewRepository[*provisioning.Workspace](db, repository.ModelHandlers[*provisioning.Workspace]{
		NewRecord: func() *provisioning.Workspace { return &provisioning.Workspace{} },
		GetID: func(w *provisioning.Workspace) uuid.UUID {
			if w == nil {
				return uuid.Nil
			}
			return w.ID
		},
		SetID: func(w *provisioning.Workspace, id uuid.UUID) {
			if w != nil {
				w.ID = id
			}
		},
	})
}

func NewTrialEntitlementsRepository(db *bun.DB) repository.Repository[*provisioning.TrialEntitlement] {
	return repository.NewRepository[*provisioning.TrialEntitlement](db, repository.ModelHandlers[*provisioning.TrialEntitlement]{
		NewRecord: func() *provisioning.TrialEntitlement { return &provisioning.TrialEntitlement{} },
		GetID: func(e *provisioning.TrialEntitlement) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *provisioning.TrialEntitlement, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})
}

type mngr struct {
	db           *bun.DB
	workspaces   repository.Repository[*provisioning.Workspace]
	entitlements repository.Repository[*provisioning.TrialEntitlement]
	now          func() time.Time
}

var _ RepositoryManager = (*mngr)(nil)

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		workspaces:   NewWorkspacesRepository(db),
		entitlements: NewTrialEntitlementsRepository(db),
		now:          time.Now,
	}
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.workspaces == nil {
		return errors.New("repository workspaces should be initialized")
	}

	if m.entitlements == nil {
		return errors.New("repository trial entitlements should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Workspaces() repository.Repository[*provisioning.Workspace] {
	return m.workspaces
}

func (m *mngr) TrialEntitlements() repository.Repository[*provisioning.TrialEntitlement] {
	return m.entitlements
}

func (m *mngr) GetWorkspace(ctx context.Context, id uuid.UUID) (*provisioning.Workspace, error) {
	workspace, err := m.workspaces.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapError("get workspace", err)
	}
	return workspace, nil
}

func (m *mngr) EnsurePrincipal(ctx context.Context, principal auth.Principal) (bool, error) {
	if principal.ID == "" {
		return false, provisioning.ErrPrincipalRequired
	}

	created := false
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := m.now().UTC()
		record := &PrincipalRecord{
			ID:          principal.ID,
			Email:       principal.Email,
			DisplayName: principal.Name,
			CreatedAt:   now,
			LastLoginAt: now,
		}

		res, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}

		if n, err := res.RowsAffected(); err == nil && n == 1 {
			created = true
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*PrincipalRecord)(nil)).
			Set("email = ?", principal.Email).
			Set("display_name = ?", principal.Name).
			Set("last_login_at = ?", now).
			Where("id = ?", principal.ID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, mapError("ensure principal", err)
	}

	return created, nil
}

func (m *mngr) GetPrincipal(ctx context.Context, id string) (*PrincipalRecord, error) {
	record := &PrincipalRecord{}
	err := m.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError("get principal", err)
	}
	return record, nil
}

func (m *mngr) CreateWorkspace(ctx context.Context, workspace *provisioning.Workspace) error {
	_, err := m.workspaces.Create(ctx, workspace)
	return mapError("create workspace", err)
}

func (m *mngr) CreateMembership(ctx context.Context, membership *provisioning.Membership) error {
	_, err := m.db.NewInsert().Model(membership).Exec(ctx)
	return mapError("create membership", err)
}

func (m *mngr) CreateTrialEntitlement(ctx context.Context, entitlement *provisioning.TrialEntitlement) error {
	_, err := m.entitlements.Create(ctx, entitlement)
	return mapError("create trial entitlement", err)
}

func (m *mngr) CreateEnrollment(ctx context.Context, enrollment *provisioning.OnboardingEnrollment) error {
	_, err := m.db.NewInsert().Model(enrollment).Exec(ctx)
	return mapError("create onboarding enrollment", err)
}

func (m *mngr) FindPersonalWorkspace(ctx context.Context, principalID string) (*provisioning.Workspace, error) {
	workspace, err := m.workspaces.Get(ctx, repository.SelectBy("owner_id", "=", principalID))
	if err != nil {
		return nil, mapError("find personal workspace", err)
	}
	return workspace, nil
}

func (m *mngr) FindActiveCampaign(ctx context.Context, key string) (*provisioning.OnboardingCampaign, error) {
	record := &provisioning.OnboardingCampaign{}
	err := m.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Where("?TableAlias.active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError("find onboarding campaign", err)
	}
	return record, nil
}

func (m *mngr) FindFirstStep(ctx context.Context, campaignID uuid.UUID) (*provisioning.OnboardingStep, error) {
	record := &provisioning.OnboardingStep{}
	err := m.db.NewSelect().
		Model(record).
		Where("?TableAlias.campaign_id = ?", campaignID).
		Order("sequence ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError("find first onboarding step", err)
	}
	return record, nil
}

func (m *mngr) FindEntitlement(ctx context.Context, workspaceID uuid.UUID) (*provisioning.TrialEntitlement, error) {
	entitlement, err := m.entitlements.Get(ctx, repository.SelectBy("workspace_id", "=", workspaceID.String()))
	if err != nil {
		return nil, mapError("find trial entitlement", err)
	}
	return entitlement, nil
}
