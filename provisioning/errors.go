package provisioning

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrConflict is wrapped by stores when an insert hits a uniqueness constraint
	ErrConflict = errors.New("record already exists")
	// ErrNotFound is wrapped by stores when a lookup matches nothing
	ErrNotFound = errors.New("record not found")
)

// ErrPrincipalRequired is returned for a trigger without a principal id
var ErrPrincipalRequired = goerrors.New("principal id is required", goerrors.CategoryBadInput).
	WithTextCode("PRINCIPAL_REQUIRED").
	WithCode(goerrors.CodeBadRequest)

// Step names one write of the provisioning saga.
type Step string

const (
	StepWorkspace   Step = "workspace"
	StepMembership  Step = "membership"
	StepEntitlement Step = "trial_entitlement"
	StepOnboarding  Step = "onboarding_enrollment"
)

// StepError records which step failed and after how many attempts.
type StepError struct {
	Step     Step
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
