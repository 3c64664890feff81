package provisioning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

func TestStateTransitions(t *testing.T) {
	path := []provisioning.State{
		provisioning.StateNotStarted,
		provisioning.StateWorkspaceCreated,
		provisioning.StateMembershipCreated,
		provisioning.StateEntitlementCreated,
		provisioning.StateOnboardingSkipped,
		provisioning.StateDone,
	}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
		assert.False(t, path[i].Terminal())
	}

	assert.True(t, provisioning.StateEntitlementCreated.CanTransition(provisioning.StateOnboardingEnrolled))
	assert.False(t, provisioning.StateNotStarted.CanTransition(provisioning.StateMembershipCreated))
	assert.False(t, provisioning.StateMembershipCreated.CanTransition(provisioning.StateDone))
	assert.True(t, provisioning.StateDone.Terminal())
}

func TestReportCompletedRequiresTerminalState(t *testing.T) {
	tests := []struct {
		name   string
		report provisioning.Report
		want   bool
	}{
		{"done", provisioning.Report{State: provisioning.StateDone}, true},
		{"resumed", provisioning.Report{State: provisioning.StateDone, Resumed: true}, true},
		{"stopped early", provisioning.Report{State: provisioning.StateMembershipCreated}, false},
		{"already provisioned", provisioning.Report{State: provisioning.StateDone, AlreadyProvisioned: true}, false},
		{"failed", provisioning.Report{State: provisioning.StateDone, Failure: &provisioning.StepError{Step: provisioning.StepEntitlement}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.Completed())
		})
	}
}
