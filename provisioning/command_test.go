package provisioning_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

func TestProvisionPrincipalMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     provisioning.ProvisionPrincipalMessage
		wantErr bool
	}{
		{"valid", provisioning.ProvisionPrincipalMessage{PrincipalID: "u1", Email: "a@b.com"}, false},
		{"email optional", provisioning.ProvisionPrincipalMessage{PrincipalID: "u1"}, false},
		{"missing principal", provisioning.ProvisionPrincipalMessage{Email: "a@b.com"}, true},
		{"bad email", provisioning.ProvisionPrincipalMessage{PrincipalID: "u1", Email: "not-an-email"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProvisionPrincipalHandlerExecute(t *testing.T) {
	store := newMemoryStore()
	handler := provisioning.NewProvisionPrincipalHandler(newTestOrchestrator(store, &recordingLogger{}))

	msg := provisioning.ProvisionPrincipalMessage{PrincipalID: "u1", Email: "a@b.com", DisplayName: "Ada"}
	assert.Equal(t, "principal.created", msg.Type())

	report, err := handler.Execute(context.Background(), msg)

	require.NoError(t, err)
	assert.True(t, report.Completed())
	workspace := store.workspaceFor("u1")
	require.NotNil(t, workspace)
	assert.Equal(t, "Ada's Workspace", workspace.Name)
}

func TestProvisionPrincipalHandlerRejectsInvalidMessage(t *testing.T) {
	store := newMemoryStore()
	handler := provisioning.NewProvisionPrincipalHandler(newTestOrchestrator(store, &recordingLogger{}))

	_, err := handler.Execute(context.Background(), provisioning.ProvisionPrincipalMessage{Email: "a@b.com"})

	require.Error(t, err)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, 0, store.callCount("CreateWorkspace"))
}

func TestProvisionPrincipalHandlerHonorsCancellation(t *testing.T) {
	store := newMemoryStore()
	handler := provisioning.NewProvisionPrincipalHandler(newTestOrchestrator(store, &recordingLogger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := handler.Execute(ctx, provisioning.ProvisionPrincipalMessage{PrincipalID: "u1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, provisioning.StateNotStarted, report.State)
	assert.Equal(t, 0, store.callCount("CreateWorkspace"))
}
