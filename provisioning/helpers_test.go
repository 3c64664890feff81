package provisioning_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

func (e logEntry) Field(key string) (any, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}
	return nil, false
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *recordingLogger) find(level, contains string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.Level == level && strings.Contains(e.Msg, contains) {
			out = append(out, e)
		}
	}
	return out
}

// memoryStore enforces the same uniqueness rules as the database schema.
// failures maps a method name to the errors returned by its next calls.
type memoryStore struct {
	mu sync.Mutex

	workspaces   map[uuid.UUID]*provisioning.Workspace
	memberships  []*provisioning.Membership
	entitlements []*provisioning.TrialEntitlement
	enrollments  []*provisioning.OnboardingEnrollment
	campaigns    []*provisioning.OnboardingCampaign
	steps        []*provisioning.OnboardingStep

	failures map[string][]error
	always   map[string]error
	calls    map[string]int

	// lostAcks makes CreateWorkspace commit and still report an error
	lostAcks int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		workspaces: map[uuid.UUID]*provisioning.Workspace{},
		failures:   map[string][]error{},
		always:     map[string]error{},
		calls:      map[string]int{},
	}
}

func (s *memoryStore) failNext(method string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], errs...)
}

func (s *memoryStore) failAlways(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.always[method] = err
}

func (s *memoryStore) clearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string][]error{}
	s.always = map[string]error{}
}

func (s *memoryStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// injected must be called with the lock held
func (s *memoryStore) injected(method string) error {
	s.calls[method]++
	if err := s.always[method]; err != nil {
		return err
	}
	if queue := s.failures[method]; len(queue) > 0 {
		s.failures[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (s *memoryStore) seedCampaign(key string, active bool, delays ...int) *provisioning.OnboardingCampaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign := &provisioning.OnboardingCampaign{ID: uuid.New(), Key: key, Name: key, Active: active}
	s.campaigns = append(s.campaigns, campaign)
	for i, delay := range delays {
		s.steps = append(s.steps, &provisioning.OnboardingStep{
			ID:           uuid.New(),
			CampaignID:   campaign.ID,
			Sequence:     i + 1,
			DelayMinutes: delay,
			Subject:      fmt.Sprintf("step %d", i+1),
		})
	}
	return campaign
}

func (s *memoryStore) CreateWorkspace(_ context.Context, w *provisioning.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateWorkspace"); err != nil {
		return err
	}
	for _, existing := range s.workspaces {
		if existing.ID == w.ID || existing.Slug == w.Slug || (w.OwnerID != "" && existing.OwnerID == w.OwnerID) {
			return fmt.Errorf("insert workspace: %w", provisioning.ErrConflict)
		}
	}
	cp := *w
	s.workspaces[w.ID] = &cp
	if s.lostAcks > 0 {
		s.lostAcks--
		return errors.New("connection reset after commit")
	}
	return nil
}

func (s *memoryStore) CreateMembership(_ context.Context, m *provisioning.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateMembership"); err != nil {
		return err
	}
	for _, existing := range s.memberships {
		if existing.WorkspaceID == m.WorkspaceID && existing.PrincipalID == m.PrincipalID {
			return fmt.Errorf("insert membership: %w", provisioning.ErrConflict)
		}
	}
	cp := *m
	s.memberships = append(s.memberships, &cp)
	return nil
}

func (s *memoryStore) CreateTrialEntitlement(_ context.Context, e *provisioning.TrialEntitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateTrialEntitlement"); err != nil {
		return err
	}
	for _, existing := range s.entitlements {
		if existing.WorkspaceID == e.WorkspaceID || existing.ExternalRef == e.ExternalRef {
			return fmt.Errorf("insert entitlement: %w", provisioning.ErrConflict)
		}
	}
	cp := *e
	s.entitlements = append(s.entitlements, &cp)
	return nil
}

func (s *memoryStore) CreateEnrollment(_ context.Context, e *provisioning.OnboardingEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateEnrollment"); err != nil {
		return err
	}
	for _, existing := range s.enrollments {
		if existing.PrincipalID == e.PrincipalID && existing.CampaignID == e.CampaignID {
			return fmt.Errorf("insert enrollment: %w", provisioning.ErrConflict)
		}
	}
	cp := *e
	s.enrollments = append(s.enrollments, &cp)
	return nil
}

func (s *memoryStore) FindPersonalWorkspace(_ context.Context, principalID string) (*provisioning.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindPersonalWorkspace"); err != nil {
		return nil, err
	}
	for _, w := range s.workspaces {
		if w.OwnerID == principalID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, provisioning.ErrNotFound
}

func (s *memoryStore) FindActiveCampaign(_ context.Context, key string) (*provisioning.OnboardingCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindActiveCampaign"); err != nil {
		return nil, err
	}
	for _, c := range s.campaigns {
		if c.Key == key && c.Active {
			return c, nil
		}
	}
	return nil, provisioning.ErrNotFound
}

func (s *memoryStore) FindFirstStep(_ context.Context, campaignID uuid.UUID) (*provisioning.OnboardingStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindFirstStep"); err != nil {
		return nil, err
	}
	var first *provisioning.OnboardingStep
	for _, step := range s.steps {
		if step.CampaignID == campaignID && (first == nil || step.Sequence < first.Sequence) {
			first = step
		}
	}
	if first == nil {
		return nil, provisioning.ErrNotFound
	}
	return first, nil
}

func (s *memoryStore) workspaceFor(principalID string) *provisioning.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workspaces {
		if w.OwnerID == principalID {
			return w
		}
	}
	return nil
}

// MockStore implements provisioning.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateWorkspace(ctx context.Context, w *provisioning.Workspace) error {
	return m.Called(ctx, w).Error(0)
}

func (m *MockStore) CreateMembership(ctx context.Context, mb *provisioning.Membership) error {
	return m.Called(ctx, mb).Error(0)
}

func (m *MockStore) CreateTrialEntitlement(ctx context.Context, e *provisioning.TrialEntitlement) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) CreateEnrollment(ctx context.Context, e *provisioning.OnboardingEnrollment) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) FindPersonalWorkspace(ctx context.Context, principalID string) (*provisioning.Workspace, error) {
	args := m.Called(ctx, principalID)
	if w, ok := args.Get(0).(*provisioning.Workspace); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) FindActiveCampaign(ctx context.Context, key string) (*provisioning.OnboardingCampaign, error) {
	args := m.Called(ctx, key)
	if c, ok := args.Get(0).(*provisioning.OnboardingCampaign); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) FindFirstStep(ctx context.Context, campaignID uuid.UUID) (*provisioning.OnboardingStep, error) {
	args := m.Called(ctx, campaignID)
	if s, ok := args.Get(0).(*provisioning.OnboardingStep); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
