package provisioning

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-workspace-auth"
)

// ProvisionPrincipalMessage is the trigger emitted once per newly created principal
type ProvisionPrincipalMessage struct {
	PrincipalID string `json:"principal_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

func (e ProvisionPrincipalMessage) Type() string { return "principal.created" }

// Validate will run validation rules
func (e ProvisionPrincipalMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.PrincipalID, validation.Required),
		validation.Field(&e.Email, is.Email),
	)
}

// Principal returns the identity the message was emitted for
func (e ProvisionPrincipalMessage) Principal() auth.Principal {
	return auth.Principal{
		ID:    e.PrincipalID,
		Email: e.Email,
		Name:  e.DisplayName,
	}
}

// ProvisionPrincipalHandler runs the saga synchronously for one trigger.
// Callers that must not block use Orchestrator.ProvisionAsync instead.
type ProvisionPrincipalHandler struct {
	orchestrator *Orchestrator
}

// NewProvisionPrincipalHandler wraps orchestrator
func NewProvisionPrincipalHandler(orchestrator *Orchestrator) *ProvisionPrincipalHandler {
	return &ProvisionPrincipalHandler{orchestrator: orchestrator}
}

// Execute validates the message and provisions the principal. The returned
// error only covers cancellation and invalid input, step failures are
// carried by the Report.
func (h *ProvisionPrincipalHandler) Execute(ctx context.Context, event ProvisionPrincipalMessage) (Report, error) {
	select {
	case <-ctx.Done():
		return Report{PrincipalID: event.PrincipalID, State: StateNotStarted}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled before provisioning",
		)
	default:
	}

	if err := event.Validate(); err != nil {
		return Report{PrincipalID: event.PrincipalID, State: StateNotStarted}, goerrors.Wrap(
			err,
			goerrors.CategoryValidation,
			"invalid provisioning trigger",
		)
	}

	return h.orchestrator.Provision(ctx, event.Principal()), nil
}
