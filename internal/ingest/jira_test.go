package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/infrainsight/infrainsight/internal/jira"
	"github.com/infrainsight/infrainsight/internal/models"
)

type memIssueWriter struct {
	issues []models.JiraIssue
}

func (w *memIssueWriter) UpsertIssue(issue models.JiraIssue) error {
	w.issues = append(w.issues, issue)
	return nil
}

func issuePayload(key, project string) json.RawMessage {
	payload, _ := json.Marshal(map[string]any{
		"id":  "1000",
		"key": key,
		"fields": map[string]any{
			"project":   map[string]any{"key": project},
			"issuetype": map[string]any{"name": "Task"},
			"status": map[string]any{
				"name":           "To Do",
				"statusCategory": map[string]any{"name": "To Do"},
			},
			"priority": map[string]any{"name": "Medium"},
			"summary":  "Investigate flaky deploys",
			"assignee": map[string]any{"displayName": "Dana"},
			"reporter": map[string]any{"displayName": "Sam"},
			"created":  "2026-05-01T09:30:00.000+0000",
			"updated":  "2026-08-20T10:00:00.000+0000",
		},
	})
	return payload
}

func newSearchFixture(t *testing.T, total int) *jira.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/search", r.URL.Path)
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))

		var issues []json.RawMessage
		for i := startAt; i < total && i < startAt+maxResults; i++ {
			issues = append(issues, issuePayload(fmt.Sprintf("OPS-%d", i+1), "OPS"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"startAt":    startAt,
			"maxResults": maxResults,
			"total":      total,
			"issues":     issues,
		})
	}))
	t.Cleanup(server.Close)

	client, err := jira.NewClient(jira.Config{
		BaseURL: server.URL, Email: "bot@example.com", APIToken: "token",
	})
	require.NoError(t, err)
	return client
}

func TestJQLBuild(t *testing.T) {
	ing := NewJiraIngester(nil, nil, []string{"OPS", "PAY"}, "", 200, zerolog.Nop())
	jql, err := ing.JQL()
	require.NoError(t, err)
	require.Equal(t, "project in (OPS,PAY) AND updated >= -30d ORDER BY updated DESC", jql)

	ing = NewJiraIngester(nil, nil, []string{"OPS"}, "labels = infra", 200, zerolog.Nop())
	jql, err = ing.JQL()
	require.NoError(t, err)
	require.Equal(t, "(project in (OPS)) AND (labels = infra) AND updated >= -30d ORDER BY updated DESC", jql)

	ing = NewJiraIngester(nil, nil, nil, "", 200, zerolog.Nop())
	_, err = ing.JQL()
	require.Error(t, err)
}

func TestJiraIngesterPagesUntilExhausted(t *testing.T) {
	client := newSearchFixture(t, 120)
	writer := &memIssueWriter{}

	ing := NewJiraIngester(client, writer, []string{"OPS"}, "", 200, zerolog.Nop())
	count, err := ing.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 120, count)
	require.Len(t, writer.issues, 120)

	first := writer.issues[0]
	require.Equal(t, "OPS-1", first.Key)
	require.Equal(t, "OPS", first.ProjectKey)
	require.Equal(t, "To Do", first.StatusCategory)
	require.Equal(t, "Dana", first.Assignee)
	require.NotNil(t, first.CreatedAtJira)
	require.Equal(t, time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC), *first.CreatedAtJira)
}

func TestJiraIngesterHonorsMaxIssues(t *testing.T) {
	client := newSearchFixture(t, 500)
	writer := &memIssueWriter{}

	ing := NewJiraIngester(client, writer, []string{"OPS"}, "", 75, zerolog.Nop())
	count, err := ing.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 75, count)
}

func TestParseIssueRequiresKey(t *testing.T) {
	_, err := parseIssue(json.RawMessage(`{"fields":{}}`))
	require.Error(t, err)
}
