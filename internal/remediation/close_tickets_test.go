package remediation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/jira"
)

// newJiraFixture serves the transitions endpoints for a fixed set of
// issue keys. Keys in noDone get no Done/Closed transition.
func newJiraFixture(t *testing.T, noDone map[string]bool) *jira.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/issue/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rest/api/3/issue/"), "/")
		require.Len(t, parts, 2)
		key := parts[0]

		switch r.Method {
		case http.MethodGet:
			transitions := []map[string]string{{"id": "11", "name": "In Progress"}}
			if !noDone[key] {
				transitions = append(transitions, map[string]string{"id": "31", "name": "Done"})
			}
			json.NewEncoder(w).Encode(map[string]any{"transitions": transitions})
		case http.MethodPost:
			var payload struct {
				Transition struct {
					ID string `json:"id"`
				} `json:"transition"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "31", payload.Transition.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := jira.NewClient(jira.Config{
		BaseURL:  server.URL,
		Email:    "bot@example.com",
		APIToken: "token",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestCloseTicketsPartialFailure(t *testing.T) {
	client := newJiraFixture(t, map[string]bool{"OPS-2": true})
	exec := NewCloseTicketsExecutor(client, zerolog.Nop())

	params, _ := json.Marshal(map[string]any{"issue_keys": []string{"OPS-1", "OPS-2", "OPS-3"}})
	raw, err := exec.Execute(context.Background(), params)
	require.NoError(t, err)

	var outcome BatchOutcome[TicketResult]
	require.NoError(t, json.Unmarshal(raw, &outcome))
	require.Equal(t, 3, outcome.Total)
	require.Equal(t, 2, outcome.Succeeded)
	require.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Details, 3)

	require.True(t, outcome.Details[0].Success)
	require.Equal(t, "Done", outcome.Details[0].Transition)
	require.False(t, outcome.Details[1].Success)
	require.Contains(t, outcome.Details[1].Error, "no 'Done' or 'Closed' transition")
	require.True(t, outcome.Details[2].Success)
}

func TestCloseTicketsRejectsEmptyParams(t *testing.T) {
	exec := NewCloseTicketsExecutor(newJiraFixture(t, nil), zerolog.Nop())

	_, err := exec.Execute(context.Background(), json.RawMessage(`{"issue_keys":[]}`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)

	_, err = exec.Execute(context.Background(), json.RawMessage(`not json`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)
}

func TestCloseTicketsRequiresClient(t *testing.T) {
	exec := NewCloseTicketsExecutor(nil, zerolog.Nop())

	_, err := exec.Execute(context.Background(), json.RawMessage(`{"issue_keys":["OPS-1"]}`))
	require.ErrorIs(t, err, pipeerrors.ErrExecutorStartup)
}

func TestCloseTicketsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client, err := jira.NewClient(jira.Config{
		BaseURL: server.URL, Email: "bot@example.com", APIToken: "token",
	})
	require.NoError(t, err)

	exec := NewCloseTicketsExecutor(client, zerolog.Nop())
	raw, err := exec.Execute(context.Background(), json.RawMessage(`{"issue_keys":["OPS-1"]}`))
	require.NoError(t, err)

	var outcome BatchOutcome[TicketResult]
	require.NoError(t, json.Unmarshal(raw, &outcome))
	require.Equal(t, 1, outcome.Failed)
	require.NotEmpty(t, outcome.Details[0].Error)
}
