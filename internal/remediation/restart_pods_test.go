package remediation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
)

func testPod(namespace, name string) *corev1.Pod {
	return &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name}}
}

func TestRestartPodsDeletesEachPod(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		testPod("prod", "api-1"),
		testPod("prod", "api-2"),
	)
	exec := NewRestartPodsExecutor(clientset, zerolog.Nop())

	params, _ := json.Marshal(map[string]any{"pods": []map[string]string{
		{"name": "api-1", "namespace": "prod"},
		{"name": "api-2", "namespace": "prod"},
		{"name": "gone", "namespace": "prod"},
	}})
	raw, err := exec.Execute(context.Background(), params)
	require.NoError(t, err)

	var outcome BatchOutcome[PodResult]
	require.NoError(t, json.Unmarshal(raw, &outcome))
	require.Equal(t, 3, outcome.Total)
	require.Equal(t, 2, outcome.Succeeded)
	require.Equal(t, 1, outcome.Failed)
	require.False(t, outcome.Details[2].Success)
	require.NotEmpty(t, outcome.Details[2].Error)

	// The real pods are gone.
	pods, err := clientset.CoreV1().Pods("prod").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, pods.Items)
}

func TestRestartPodsValidatesParams(t *testing.T) {
	exec := NewRestartPodsExecutor(fake.NewSimpleClientset(), zerolog.Nop())

	_, err := exec.Execute(context.Background(), json.RawMessage(`{"pods":[]}`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)

	_, err = exec.Execute(context.Background(), json.RawMessage(`{"pods":[{"name":"api-1"}]}`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)
}

func TestRestartPodsRequiresClientset(t *testing.T) {
	exec := NewRestartPodsExecutor(nil, zerolog.Nop())

	_, err := exec.Execute(context.Background(),
		json.RawMessage(`{"pods":[{"name":"api-1","namespace":"prod"}]}`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)
}
