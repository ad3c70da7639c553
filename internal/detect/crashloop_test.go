package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/infrainsight/infrainsight/internal/models"
)

func TestCrashLoopDetectsByReasonAndRestarts(t *testing.T) {
	reader := &fakeSignalReader{
		snapshots: []models.PodSnapshot{
			{Namespace: "prod", Pod: "api-1", Reason: "CrashLoopBackOff", RestartCount: 2},
			{Namespace: "prod", Pod: "api-2", RestartCount: 7},
			{Namespace: "prod", Pod: "worker-1", RestartCount: 5},
			{Namespace: "prod", Pod: "healthy", RestartCount: 0},
			{Namespace: "staging", Pod: "cron-1", RestartCount: 6},
		},
	}
	det := NewCrashLoopDetector(reader, 5)

	drafts, err := det.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	prod := drafts[0]
	require.Equal(t, "crashloop_restarts", prod.Type)
	require.Equal(t, "prod:pod_restarts_or_crashloop", prod.Fingerprint)
	require.Equal(t, 1, prod.Severity) // CrashLoopBackOff present
	require.Equal(t, 85, prod.Confidence)
	require.EqualValues(t, 3, gjson.GetBytes(prod.Evidence, "count").Int())
	// Evidence pods are sorted by restarts, worst first.
	top := gjson.GetBytes(prod.Evidence, "top_pods").Array()
	require.Equal(t, "api-2", top[0].Get("pod").String())
	require.Nil(t, prod.ProposedAction)

	staging := drafts[1]
	require.Equal(t, "staging:pod_restarts_or_crashloop", staging.Fingerprint)
	require.Equal(t, 2, staging.Severity) // restarts only, no crashloop marker
}

func TestCrashLoopNoUnstablePods(t *testing.T) {
	reader := &fakeSignalReader{
		snapshots: []models.PodSnapshot{
			{Namespace: "prod", Pod: "healthy", RestartCount: 1},
		},
	}
	det := NewCrashLoopDetector(reader, 5)

	drafts, err := det.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, drafts)
}

func TestCrashLoopReaderFailure(t *testing.T) {
	det := NewCrashLoopDetector(&fakeSignalReader{snapsErr: fmt.Errorf("db locked")}, 5)

	_, err := det.Run(context.Background())
	require.Error(t, err)
}
