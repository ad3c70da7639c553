package detect

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/infrainsight/infrainsight/internal/models"
)

type stubDetector struct {
	name   string
	drafts []models.FindingDraft
	err    error
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Run(context.Context) ([]models.FindingDraft, error) {
	return d.drafts, d.err
}

type memFindingWriter struct {
	mu     sync.Mutex
	drafts []models.FindingDraft
	err    error
}

func (w *memFindingWriter) UpsertFinding(draft models.FindingDraft) (*models.Finding, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, false, w.err
	}
	w.drafts = append(w.drafts, draft)
	return &models.Finding{ID: "f-" + draft.Fingerprint, Type: draft.Type, Severity: draft.Severity}, true, nil
}

func TestRunAllIsolatesDetectorFailures(t *testing.T) {
	writer := &memFindingWriter{}
	runner := NewRunner([]Detector{
		&stubDetector{name: "healthy", drafts: []models.FindingDraft{
			{Type: "backlog_aging", Fingerprint: "OPS:todo_older_than_30d", Severity: 2, Title: "OPS"},
			{Type: "backlog_aging", Fingerprint: "PAY:todo_older_than_30d", Severity: 3, Title: "PAY"},
		}},
		&stubDetector{name: "broken", err: fmt.Errorf("signal query failed")},
	}, writer, zerolog.Nop())

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.FindingsUpserted)
	require.Equal(t, 1, result.DetectorFailures)
	require.Len(t, writer.drafts, 2)
}

func TestRunAllCountsUpsertFailures(t *testing.T) {
	writer := &memFindingWriter{err: fmt.Errorf("disk full")}
	runner := NewRunner([]Detector{
		&stubDetector{name: "healthy", drafts: []models.FindingDraft{
			{Type: "backlog_aging", Fingerprint: "OPS:todo_older_than_30d", Severity: 2, Title: "OPS"},
		}},
	}, writer, zerolog.Nop())

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.FindingsUpserted)
	require.Equal(t, 1, result.DetectorFailures)
}
