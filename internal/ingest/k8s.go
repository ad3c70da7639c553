package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/infrainsight/infrainsight/internal/metrics"
	"github.com/infrainsight/infrainsight/internal/models"
)

// SnapshotWriter is the signal-store slice the cluster ingester writes to.
type SnapshotWriter interface {
	InsertPodSnapshot(snap models.PodSnapshot) error
	UpsertEvent(ev models.ClusterEvent) error
}

// ClusterIngester records pod snapshots and cluster events from one
// Kubernetes cluster.
type ClusterIngester struct {
	clientset   kubernetes.Interface
	store       SnapshotWriter
	clusterName string
	namespaces  map[string]bool
	maxEvents   int
	logger      zerolog.Logger
}

// NewClusterIngester builds an ingester. namespaceFilter is an allowlist;
// empty means every namespace.
func NewClusterIngester(clientset kubernetes.Interface, store SnapshotWriter, clusterName string, namespaceFilter []string, maxEvents int, logger zerolog.Logger) *ClusterIngester {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	allow := make(map[string]bool, len(namespaceFilter))
	for _, ns := range namespaceFilter {
		allow[ns] = true
	}
	return &ClusterIngester{
		clientset:   clientset,
		store:       store,
		clusterName: clusterName,
		namespaces:  allow,
		maxEvents:   maxEvents,
		logger:      logger,
	}
}

// Run performs one ingestion pass: every pod becomes a fresh snapshot row
// and recent events are upserted. Returns pods and events recorded.
func (ing *ClusterIngester) Run(ctx context.Context) (int, int, error) {
	pods, err := ing.ingestPods(ctx)
	if err != nil {
		return 0, 0, err
	}
	events, err := ing.ingestEvents(ctx)
	if err != nil {
		return pods, 0, err
	}

	ing.logger.Info().
		Int("pods", pods).
		Int("events", events).
		Str("cluster", ing.clusterName).
		Msg("Cluster ingestion pass finished")
	return pods, events, nil
}

func (ing *ClusterIngester) ingestPods(ctx context.Context) (int, error) {
	list, err := ing.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("list pods: %w", err)
	}

	count := 0
	for _, pod := range list.Items {
		if !ing.allowed(pod.Namespace) {
			continue
		}
		snap := snapshotFromPod(&pod, ing.clusterName)
		if err := ing.store.InsertPodSnapshot(snap); err != nil {
			return count, fmt.Errorf("record snapshot %s/%s: %w", pod.Namespace, pod.Name, err)
		}
		metrics.IngestedRows.WithLabelValues("pod_snapshots").Inc()
		count++
	}
	return count, nil
}

func (ing *ClusterIngester) ingestEvents(ctx context.Context) (int, error) {
	list, err := ing.clientset.CoreV1().Events(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		Limit: int64(ing.maxEvents),
	})
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	count := 0
	for _, ev := range list.Items {
		if !ing.allowed(ev.Namespace) {
			continue
		}
		if err := ing.store.UpsertEvent(eventFromK8s(&ev, ing.clusterName)); err != nil {
			return count, fmt.Errorf("record event %s/%s: %w", ev.Namespace, ev.Name, err)
		}
		metrics.IngestedRows.WithLabelValues("cluster_events").Inc()
		count++
	}
	return count, nil
}

func (ing *ClusterIngester) allowed(namespace string) bool {
	return len(ing.namespaces) == 0 || ing.namespaces[namespace]
}

// snapshotFromPod flattens the pod status detectors care about: total
// restarts across all containers and the first waiting reason seen.
func snapshotFromPod(pod *corev1.Pod, cluster string) models.PodSnapshot {
	restarts := 0
	reason := ""
	statuses := append(append([]corev1.ContainerStatus{}, pod.Status.InitContainerStatuses...),
		pod.Status.ContainerStatuses...)
	for _, cs := range statuses {
		restarts += int(cs.RestartCount)
		if reason == "" && cs.State.Waiting != nil {
			reason = cs.State.Waiting.Reason
		}
	}

	raw, _ := json.Marshal(map[string]any{
		"labels": pod.Labels,
		"node":   pod.Spec.NodeName,
	})

	return models.PodSnapshot{
		Cluster:      cluster,
		Namespace:    pod.Namespace,
		Pod:          pod.Name,
		Node:         pod.Spec.NodeName,
		Phase:        string(pod.Status.Phase),
		RestartCount: restarts,
		Reason:       reason,
		Raw:          raw,
	}
}

func eventFromK8s(ev *corev1.Event, cluster string) models.ClusterEvent {
	out := models.ClusterEvent{
		Cluster:      cluster,
		Namespace:    ev.Namespace,
		Name:         ev.Name,
		Type:         ev.Type,
		Reason:       ev.Reason,
		Message:      ev.Message,
		InvolvedKind: ev.InvolvedObject.Kind,
		InvolvedName: ev.InvolvedObject.Name,
		Count:        int(ev.Count),
	}
	if !ev.FirstTimestamp.IsZero() {
		t := ev.FirstTimestamp.Time.UTC()
		out.FirstTimestamp = &t
	}
	if !ev.LastTimestamp.IsZero() {
		t := ev.LastTimestamp.Time.UTC()
		out.LastTimestamp = &t
	}
	return out
}
