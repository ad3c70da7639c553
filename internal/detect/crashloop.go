package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/infrainsight/infrainsight/internal/models"
)

const (
	crashLoopName       = "crashloop_restarts"
	crashLoopReason     = "CrashLoopBackOff"
	crashLoopQueryLimit = 5000
	crashLoopSampleSize = 20
)

// CrashLoopDetector flags namespaces with crash-looping or restart-storm
// pods in the most recent snapshots. One finding per namespace; no action
// is proposed, restarts are left to operator judgement.
type CrashLoopDetector struct {
	reader    SignalReader
	threshold int
}

func NewCrashLoopDetector(reader SignalReader, restartThreshold int) *CrashLoopDetector {
	return &CrashLoopDetector{reader: reader, threshold: restartThreshold}
}

func (d *CrashLoopDetector) Name() string { return crashLoopName }

func (d *CrashLoopDetector) Run(ctx context.Context) ([]models.FindingDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pods, err := d.reader.RecentPodSnapshots(crashLoopQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query pod snapshots: %w", err)
	}

	byNamespace := make(map[string][]models.PodSnapshot)
	for _, pod := range pods {
		if pod.Reason == crashLoopReason || pod.RestartCount >= d.threshold {
			byNamespace[pod.Namespace] = append(byNamespace[pod.Namespace], pod)
		}
	}
	if len(byNamespace) == 0 {
		return nil, nil
	}

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	drafts := make([]models.FindingDraft, 0, len(namespaces))
	for _, ns := range namespaces {
		group := byNamespace[ns]

		sorted := make([]models.PodSnapshot, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].RestartCount > sorted[j].RestartCount
		})

		severity := 2
		for _, pod := range group {
			if pod.Reason == crashLoopReason {
				severity = 1
				break
			}
		}

		sample := sorted
		if len(sample) > crashLoopSampleSize {
			sample = sample[:crashLoopSampleSize]
		}
		topPods := make([]map[string]any, 0, len(sample))
		for _, pod := range sample {
			topPods = append(topPods, map[string]any{
				"pod":      pod.Pod,
				"restarts": pod.RestartCount,
				"reason":   pod.Reason,
			})
		}

		evidence, err := json.Marshal(map[string]any{
			"rule":     fmt.Sprintf("reason == %s OR restart_count >= %d", crashLoopReason, d.threshold),
			"count":    len(group),
			"top_pods": topPods,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal crashloop evidence for %s: %w", ns, err)
		}
		remediation, err := json.Marshal(map[string]any{
			"steps": []string{
				"Check failing pod logs and recent deploys.",
				"Verify CPU/memory requests & limits are set.",
				"Add readiness/liveness probes and safe startup.",
				"Ensure replicas > 1 for critical workloads and add PDB.",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal crashloop remediation for %s: %w", ns, err)
		}

		drafts = append(drafts, models.FindingDraft{
			Type:        crashLoopName,
			Fingerprint: fmt.Sprintf("%s:pod_restarts_or_crashloop", ns),
			Severity:    severity,
			Confidence:  85,
			Title:       fmt.Sprintf("Kubernetes instability in %s: %d pods restarting / CrashLoopBackOff", ns, len(group)),
			Summary:     "Frequent restarts usually indicate failing containers, bad config, or insufficient resources.",
			Evidence:    evidence,
			Remediation: remediation,
		})
	}
	return drafts, nil
}
