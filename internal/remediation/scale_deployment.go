package remediation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// ActionTypeScaleDeployment sets the replica count of one deployment.
const ActionTypeScaleDeployment = "scale_deployment"

type scaleDeploymentParams struct {
	Deployment string `json:"deployment"`
	Namespace  string `json:"namespace"`
	Replicas   *int32 `json:"replicas"`
}

// ScaleResult echoes the target back alongside the outcome.
type ScaleResult struct {
	Success    bool   `json:"success"`
	Deployment string `json:"deployment"`
	Namespace  string `json:"namespace"`
	Replicas   int32  `json:"replicas"`
	Error      string `json:"error,omitempty"`
}

// ScaleDeploymentExecutor patches a single deployment's replica count.
// Not a batch: a failing target yields one failure-shaped result.
type ScaleDeploymentExecutor struct {
	clientset kubernetes.Interface
	logger    zerolog.Logger
}

func NewScaleDeploymentExecutor(clientset kubernetes.Interface, logger zerolog.Logger) *ScaleDeploymentExecutor {
	return &ScaleDeploymentExecutor{clientset: clientset, logger: logger}
}

func (e *ScaleDeploymentExecutor) ActionType() string { return ActionTypeScaleDeployment }

func (e *ScaleDeploymentExecutor) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p scaleDeploymentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, startupError(ActionTypeScaleDeployment, fmt.Errorf("decode params: %w", err))
	}
	if p.Deployment == "" || p.Namespace == "" || p.Replicas == nil {
		return nil, startupError(ActionTypeScaleDeployment,
			fmt.Errorf("params.deployment, params.namespace, and params.replicas are required"))
	}
	if e.clientset == nil {
		return nil, startupError(ActionTypeScaleDeployment, fmt.Errorf("kubernetes client not configured"))
	}

	result := ScaleResult{
		Deployment: p.Deployment,
		Namespace:  p.Namespace,
		Replicas:   *p.Replicas,
	}

	if err := e.scale(ctx, p); err != nil {
		result.Error = err.Error()
		e.logger.Warn().Err(err).
			Str("deployment", p.Deployment).
			Str("namespace", p.Namespace).
			Msg("Deployment scale failed")
	} else {
		result.Success = true
	}

	return json.Marshal(result)
}

func (e *ScaleDeploymentExecutor) scale(ctx context.Context, p scaleDeploymentParams) error {
	deployments := e.clientset.AppsV1().Deployments(p.Namespace)
	if _, err := deployments.Get(ctx, p.Deployment, metav1.GetOptions{}); err != nil {
		return fmt.Errorf("read deployment: %w", err)
	}

	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, *p.Replicas)
	if _, err := deployments.Patch(ctx, p.Deployment, types.MergePatchType, []byte(patch), metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("patch replicas: %w", err)
	}
	return nil
}
