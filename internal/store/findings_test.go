package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "insight.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func backlogDraft() models.FindingDraft {
	return models.FindingDraft{
		Type:        "backlog_aging",
		Fingerprint: "OPS:todo_older_than_30d",
		Severity:    2,
		Confidence:  80,
		ServiceID:   "OPS",
		Title:       "25 stale To Do tickets in OPS",
		Summary:     "Tickets older than 30 days are still in To Do",
		Evidence:    json.RawMessage(`{"count":25}`),
	}
}

func TestUpsertFindingCreatesThenUpdates(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return base }

	first, created, err := s.UpsertFinding(backlogDraft())
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, first.ID)
	require.Equal(t, 2, first.Severity)

	// Same (type, fingerprint) later: identity is stable, mutable fields
	// and updated_at move.
	s.nowFn = func() time.Time { return base.Add(time.Hour) }
	draft := backlogDraft()
	draft.Severity = 3
	draft.Title = "18 stale To Do tickets in OPS"

	second, created, err := s.UpsertFinding(draft)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, 3, second.Severity)
	require.Equal(t, "18 stale To Do tickets in OPS", second.Title)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestUpsertFindingRequiresIdentity(t *testing.T) {
	s := newTestStore(t)

	draft := backlogDraft()
	draft.Fingerprint = ""
	_, _, err := s.UpsertFinding(draft)
	require.ErrorIs(t, err, pipeerrors.ErrInvalidInput)
}

func TestUpsertFindingProposesActionOnce(t *testing.T) {
	s := newTestStore(t)

	draft := backlogDraft()
	draft.ProposedAction = &models.ProposedActionDraft{
		ActionType:  "close_jira_tickets",
		Title:       "Close 25 stale tickets",
		Description: "Transition tickets to Done",
		Params:      json.RawMessage(`{"issue_keys":["OPS-1","OPS-2"]}`),
	}

	finding, _, err := s.UpsertFinding(draft)
	require.NoError(t, err)

	actions, err := s.ListActions("", finding.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.StatusProposed, actions[0].Status)
	require.Equal(t, "close_jira_tickets", actions[0].ActionType)

	// Re-running the detector must not stack duplicate proposals.
	_, _, err = s.UpsertFinding(draft)
	require.NoError(t, err)

	actions, err = s.ListActions("", finding.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestGetFindingNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetFinding("missing")
	require.ErrorIs(t, err, pipeerrors.ErrNotFound)
}

func TestSeverityCountsAndTopFindings(t *testing.T) {
	s := newTestStore(t)

	drafts := []models.FindingDraft{
		{Type: "crashloop_restarts", Fingerprint: "prod:pod_restarts_or_crashloop", Severity: 1, Confidence: 85, Title: "crashloop prod"},
		{Type: "backlog_aging", Fingerprint: "OPS:todo_older_than_30d", Severity: 2, Confidence: 80, Title: "OPS backlog"},
		{Type: "backlog_aging", Fingerprint: "PAY:todo_older_than_30d", Severity: 3, Confidence: 80, Title: "PAY backlog"},
	}
	for _, d := range drafts {
		_, _, err := s.UpsertFinding(d)
		require.NoError(t, err)
	}

	counts, err := s.SeverityCounts()
	require.NoError(t, err)
	require.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, counts)

	top, err := s.TopFindings(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "crashloop prod", top[0].Title)
	require.Equal(t, "OPS backlog", top[1].Title)
}

func TestDailyTrends(t *testing.T) {
	s := newTestStore(t)

	day1 := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	s.nowFn = func() time.Time { return day1 }
	_, _, err := s.UpsertFinding(models.FindingDraft{
		Type: "backlog_aging", Fingerprint: "OPS:todo_older_than_30d",
		Severity: 2, Confidence: 80, Title: "OPS backlog",
	})
	require.NoError(t, err)

	s.nowFn = func() time.Time { return day2 }
	_, _, err = s.UpsertFinding(models.FindingDraft{
		Type: "crashloop_restarts", Fingerprint: "prod:pod_restarts_or_crashloop",
		Severity: 1, Confidence: 85, Title: "crashloop prod",
	})
	require.NoError(t, err)

	trends, err := s.DailyTrends(14)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	require.Equal(t, "2026-08-20", trends[0].Day)
	require.Equal(t, 1, trends[0].P2)
	require.Equal(t, "2026-08-21", trends[1].Day)
	require.Equal(t, 1, trends[1].P1)
}
