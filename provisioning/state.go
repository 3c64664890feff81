package provisioning

// State is the progress of one provisioning run. There is no failed state:
// a run that exhausts retries on a mandatory step stays at the last state it
// reached and reports the StepError alongside it.
type State string

const (
	StateNotStarted         State = "not_started"
	StateWorkspaceCreated   State = "workspace_created"
	StateMembershipCreated  State = "membership_created"
	StateEntitlementCreated State = "entitlement_created"
	StateOnboardingEnrolled State = "onboarding_enrolled"
	StateOnboardingSkipped  State = "onboarding_skipped"
	StateDone               State = "done"
)

var transitions = map[State][]State{
	StateNotStarted:         {StateWorkspaceCreated},
	StateWorkspaceCreated:   {StateMembershipCreated},
	StateMembershipCreated:  {StateEntitlementCreated},
	StateEntitlementCreated: {StateOnboardingEnrolled, StateOnboardingSkipped},
	StateOnboardingEnrolled: {StateDone},
	StateOnboardingSkipped:  {StateDone},
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no state follows s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
