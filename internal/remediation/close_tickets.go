package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/infrainsight/infrainsight/internal/jira"
)

// ActionTypeCloseTickets transitions stale tracker issues to Done/Closed.
const ActionTypeCloseTickets = "close_jira_tickets"

var doneSynonyms = map[string]bool{
	"done":   true,
	"closed": true,
	"close":  true,
}

type closeTicketsParams struct {
	IssueKeys []string `json:"issue_keys"`
}

// TicketResult is the per-key outcome of one close attempt.
type TicketResult struct {
	IssueKey   string `json:"issue_key"`
	Success    bool   `json:"success"`
	Transition string `json:"transition,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchOutcome is the result payload shared by the batch executors.
type BatchOutcome[T any] struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Details   []T `json:"details"`
}

// CloseTicketsExecutor closes tracker issues one key at a time. A key
// with no Done/Closed transition, or whose transition call fails, is
// recorded as a per-key failure; the remaining keys still proceed.
type CloseTicketsExecutor struct {
	client *jira.Client
	logger zerolog.Logger
}

func NewCloseTicketsExecutor(client *jira.Client, logger zerolog.Logger) *CloseTicketsExecutor {
	return &CloseTicketsExecutor{client: client, logger: logger}
}

func (e *CloseTicketsExecutor) ActionType() string { return ActionTypeCloseTickets }

func (e *CloseTicketsExecutor) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p closeTicketsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, startupError(ActionTypeCloseTickets, fmt.Errorf("decode params: %w", err))
	}
	if len(p.IssueKeys) == 0 {
		return nil, startupError(ActionTypeCloseTickets, fmt.Errorf("params.issue_keys is required"))
	}
	if e.client == nil {
		return nil, startupError(ActionTypeCloseTickets, fmt.Errorf("jira client not configured"))
	}

	outcome := BatchOutcome[TicketResult]{Total: len(p.IssueKeys)}
	for _, key := range p.IssueKeys {
		detail := e.closeOne(ctx, key)
		if detail.Success {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
		outcome.Details = append(outcome.Details, detail)
	}

	e.logger.Info().
		Int("total", outcome.Total).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Msg("Close-tickets batch finished")

	return json.Marshal(outcome)
}

func (e *CloseTicketsExecutor) closeOne(ctx context.Context, key string) TicketResult {
	transitions, err := e.client.Transitions(ctx, key)
	if err != nil {
		return TicketResult{IssueKey: key, Error: err.Error()}
	}

	var done *jira.Transition
	for i, t := range transitions {
		if doneSynonyms[strings.ToLower(t.Name)] {
			done = &transitions[i]
			break
		}
	}
	if done == nil {
		return TicketResult{IssueKey: key, Error: "no 'Done' or 'Closed' transition available"}
	}

	if err := e.client.ApplyTransition(ctx, key, done.ID); err != nil {
		return TicketResult{IssueKey: key, Error: err.Error()}
	}
	return TicketResult{IssueKey: key, Success: true, Transition: done.Name}
}
