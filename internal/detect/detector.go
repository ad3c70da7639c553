// Package detect evaluates rule-based detectors against the signal store
// and turns matches into finding drafts.
package detect

import (
	"context"
	"time"

	"github.com/infrainsight/infrainsight/internal/models"
)

// SignalReader is the read-only view of the signal store that detectors
// are allowed to see.
type SignalReader interface {
	OpenIssuesOlderThan(statusCategory string, cutoff time.Time, limit int) ([]models.JiraIssue, error)
	RecentPodSnapshots(limit int) ([]models.PodSnapshot, error)
}

// Detector evaluates one rule against the signal store. Implementations
// must be pure readers: same store contents, same fingerprints. Volatile
// data (counts, timestamps) belongs in evidence, never in a fingerprint.
type Detector interface {
	Name() string
	Run(ctx context.Context) ([]models.FindingDraft, error)
}

// Builtin returns the built-in detector set wired to the given reader.
func Builtin(reader SignalReader, backlogAgingDays, podRestartThreshold int) []Detector {
	return []Detector{
		NewBacklogAgingDetector(reader, backlogAgingDays),
		NewCrashLoopDetector(reader, podRestartThreshold),
	}
}
