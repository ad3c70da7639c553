package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMatchesSentinels(t *testing.T) {
	err := NotFound("get_action", "a-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "get_action failed for a-1")

	err = InvalidState("approve_action", "a-1", "completed")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), `current status "completed"`)
}

func TestPipelineErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(KindDetectorFailure, "run_detector", fmt.Errorf("%w: %w", ErrDetectorFailure, cause))

	require.ErrorIs(t, err, ErrDetectorFailure)

	var pe *PipelineError
	require.True(t, As(err, &pe))
	require.Equal(t, KindDetectorFailure, pe.Kind)
	require.Equal(t, "run_detector", pe.Op)
}

func TestPipelineErrorSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handling request: %w", NotFound("get_finding", "f-1"))
	require.ErrorIs(t, err, ErrNotFound)
}
