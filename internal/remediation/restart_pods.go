package remediation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ActionTypeRestartPods deletes pods so their controllers recreate them.
const ActionTypeRestartPods = "restart_pods"

type restartPodsParams struct {
	Pods []podRef `json:"pods"`
}

type podRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// PodResult is the per-pod outcome of one restart attempt.
type PodResult struct {
	Pod       string `json:"pod"`
	Namespace string `json:"namespace"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// RestartPodsExecutor restarts pods by deleting them; the owning
// controller brings replacements up. Deletions are independent: one
// failed delete never blocks the rest of the batch.
type RestartPodsExecutor struct {
	clientset kubernetes.Interface
	logger    zerolog.Logger
}

func NewRestartPodsExecutor(clientset kubernetes.Interface, logger zerolog.Logger) *RestartPodsExecutor {
	return &RestartPodsExecutor{clientset: clientset, logger: logger}
}

func (e *RestartPodsExecutor) ActionType() string { return ActionTypeRestartPods }

func (e *RestartPodsExecutor) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p restartPodsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, startupError(ActionTypeRestartPods, fmt.Errorf("decode params: %w", err))
	}
	if len(p.Pods) == 0 {
		return nil, startupError(ActionTypeRestartPods, fmt.Errorf("params.pods is required"))
	}
	for _, pod := range p.Pods {
		if pod.Name == "" || pod.Namespace == "" {
			return nil, startupError(ActionTypeRestartPods,
				fmt.Errorf("every pod entry needs name and namespace"))
		}
	}
	if e.clientset == nil {
		return nil, startupError(ActionTypeRestartPods, fmt.Errorf("kubernetes client not configured"))
	}

	outcome := BatchOutcome[PodResult]{Total: len(p.Pods)}
	for _, pod := range p.Pods {
		detail := PodResult{Pod: pod.Name, Namespace: pod.Namespace}
		err := e.clientset.CoreV1().Pods(pod.Namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{})
		if err != nil {
			detail.Error = err.Error()
			outcome.Failed++
		} else {
			detail.Success = true
			outcome.Succeeded++
		}
		outcome.Details = append(outcome.Details, detail)
	}

	e.logger.Info().
		Int("total", outcome.Total).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Msg("Restart-pods batch finished")

	return json.Marshal(outcome)
}
