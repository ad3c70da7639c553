package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/infrainsight/infrainsight/internal/models"
)

type fakeSignalReader struct {
	issues    []models.JiraIssue
	snapshots []models.PodSnapshot
	issuesErr error
	snapsErr  error

	gotCategory string
	gotCutoff   time.Time
	gotLimit    int
}

func (f *fakeSignalReader) OpenIssuesOlderThan(statusCategory string, cutoff time.Time, limit int) ([]models.JiraIssue, error) {
	f.gotCategory = statusCategory
	f.gotCutoff = cutoff
	f.gotLimit = limit
	return f.issues, f.issuesErr
}

func (f *fakeSignalReader) RecentPodSnapshots(limit int) ([]models.PodSnapshot, error) {
	return f.snapshots, f.snapsErr
}

func staleIssues(project string, n int) []models.JiraIssue {
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.JiraIssue, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.JiraIssue{
			Key:            fmt.Sprintf("%s-%d", project, i),
			ProjectKey:     project,
			StatusCategory: "To Do",
			CreatedAtJira:  &created,
		})
	}
	return out
}

func TestBacklogAgingGroupsByProject(t *testing.T) {
	reader := &fakeSignalReader{
		issues: append(staleIssues("OPS", 25), staleIssues("PAY", 5)...),
	}
	det := NewBacklogAgingDetector(reader, 30)
	det.nowFn = func() time.Time { return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC) }

	drafts, err := det.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	require.Equal(t, "To Do", reader.gotCategory)
	require.Equal(t, time.Date(2026, 7, 26, 0, 0, 0, 0, time.UTC), reader.gotCutoff)
	require.Equal(t, 500, reader.gotLimit)

	// Sorted by project key, so OPS first.
	ops := drafts[0]
	require.Equal(t, "backlog_aging", ops.Type)
	require.Equal(t, "OPS:todo_older_than_30d", ops.Fingerprint)
	require.Equal(t, 2, ops.Severity) // 25 > 20 bumps severity
	require.Equal(t, 80, ops.Confidence)
	require.EqualValues(t, 25, gjson.GetBytes(ops.Evidence, "count").Int())
	require.Len(t, gjson.GetBytes(ops.Evidence, "sample_issue_keys").Array(), 20)

	require.NotNil(t, ops.ProposedAction)
	require.Equal(t, "close_jira_tickets", ops.ProposedAction.ActionType)
	// The action carries every matched key, not just the evidence sample.
	require.Len(t, gjson.GetBytes(ops.ProposedAction.Params, "issue_keys").Array(), 25)

	pay := drafts[1]
	require.Equal(t, "PAY:todo_older_than_30d", pay.Fingerprint)
	require.Equal(t, 3, pay.Severity)
	require.Len(t, gjson.GetBytes(pay.ProposedAction.Params, "issue_keys").Array(), 5)
}

func TestBacklogAgingNoMatches(t *testing.T) {
	det := NewBacklogAgingDetector(&fakeSignalReader{}, 30)

	drafts, err := det.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, drafts)
}

func TestBacklogAgingReaderFailure(t *testing.T) {
	det := NewBacklogAgingDetector(&fakeSignalReader{issuesErr: fmt.Errorf("db locked")}, 30)

	_, err := det.Run(context.Background())
	require.Error(t, err)
}
