package remediation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
)

type stubExecutor struct {
	actionType string
	result     json.RawMessage
	err        error
}

func (e *stubExecutor) ActionType() string { return e.actionType }

func (e *stubExecutor) Execute(context.Context, json.RawMessage) (json.RawMessage, error) {
	return e.result, e.err
}

func TestRegistryDispatch(t *testing.T) {
	registry, err := NewRegistry(
		&stubExecutor{actionType: "close_jira_tickets"},
		&stubExecutor{actionType: "restart_pods"},
	)
	require.NoError(t, err)

	exec, err := registry.Get("restart_pods")
	require.NoError(t, err)
	require.Equal(t, "restart_pods", exec.ActionType())

	_, err = registry.Get("unknown_type")
	require.ErrorIs(t, err, pipeerrors.ErrNotFound)

	require.Equal(t, []string{"close_jira_tickets", "restart_pods"}, registry.ActionTypes())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		&stubExecutor{actionType: "restart_pods"},
		&stubExecutor{actionType: "restart_pods"},
	)
	require.Error(t, err)
}
