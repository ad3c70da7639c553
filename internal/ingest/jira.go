// Package ingest populates the signal store from the issue tracker and
// the cluster API.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/infrainsight/infrainsight/internal/jira"
	"github.com/infrainsight/infrainsight/internal/metrics"
	"github.com/infrainsight/infrainsight/internal/models"
)

// jiraTimeLayout is the timestamp format Jira Cloud returns.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

const jiraPageSize = 50

// IssueWriter is the signal-store slice the Jira ingester writes to.
type IssueWriter interface {
	UpsertIssue(issue models.JiraIssue) error
}

// JiraIngester pulls recently updated issues for the configured projects
// into the signal store.
type JiraIngester struct {
	client      *jira.Client
	store       IssueWriter
	projectKeys []string
	jqlExtra    string
	maxIssues   int
	logger      zerolog.Logger
}

func NewJiraIngester(client *jira.Client, store IssueWriter, projectKeys []string, jqlExtra string, maxIssues int, logger zerolog.Logger) *JiraIngester {
	if maxIssues <= 0 {
		maxIssues = 200
	}
	return &JiraIngester{
		client:      client,
		store:       store,
		projectKeys: projectKeys,
		jqlExtra:    jqlExtra,
		maxIssues:   maxIssues,
		logger:      logger,
	}
}

// JQL builds the search query: configured projects, optional extra
// clause, scoped to the last 30 days of updates.
func (ing *JiraIngester) JQL() (string, error) {
	if len(ing.projectKeys) == 0 {
		return "", fmt.Errorf("no jira project keys configured")
	}
	base := fmt.Sprintf("project in (%s)", strings.Join(ing.projectKeys, ","))
	if extra := strings.TrimSpace(ing.jqlExtra); extra != "" {
		base = fmt.Sprintf("(%s) AND (%s)", base, extra)
	}
	return base + " AND updated >= -30d ORDER BY updated DESC", nil
}

// Run performs one ingestion pass, paging until maxIssues or the search
// is exhausted. Returns the number of issues upserted.
func (ing *JiraIngester) Run(ctx context.Context) (int, error) {
	jql, err := ing.JQL()
	if err != nil {
		return 0, err
	}

	total := 0
	startAt := 0
	for total < ing.maxIssues {
		page, err := ing.client.Search(ctx, jql, startAt, jiraPageSize)
		if err != nil {
			return total, fmt.Errorf("search page at %d: %w", startAt, err)
		}
		if len(page.Issues) == 0 {
			break
		}

		for _, raw := range page.Issues {
			issue, err := parseIssue(raw)
			if err != nil {
				ing.logger.Warn().Err(err).Msg("Skipping unparseable issue payload")
				continue
			}
			if err := ing.store.UpsertIssue(issue); err != nil {
				return total, fmt.Errorf("upsert issue %s: %w", issue.Key, err)
			}
			metrics.IngestedRows.WithLabelValues("jira_issues").Inc()
			total++
			if total >= ing.maxIssues {
				break
			}
		}

		startAt += len(page.Issues)
		if startAt >= page.Total {
			break
		}
	}

	ing.logger.Info().Int("issues", total).Str("jql", jql).Msg("Jira ingestion pass finished")
	return total, nil
}

func parseIssue(raw []byte) (models.JiraIssue, error) {
	payload := gjson.ParseBytes(raw)
	key := payload.Get("key").String()
	if key == "" {
		return models.JiraIssue{}, fmt.Errorf("issue payload has no key")
	}
	fields := payload.Get("fields")

	return models.JiraIssue{
		Key:            key,
		IssueID:        payload.Get("id").String(),
		ProjectKey:     fields.Get("project.key").String(),
		IssueType:      fields.Get("issuetype.name").String(),
		Status:         fields.Get("status.name").String(),
		StatusCategory: fields.Get("status.statusCategory.name").String(),
		Priority:       fields.Get("priority.name").String(),
		Summary:        fields.Get("summary").String(),
		Assignee:       fields.Get("assignee.displayName").String(),
		Reporter:       fields.Get("reporter.displayName").String(),
		CreatedAtJira:  parseJiraTime(fields.Get("created").String()),
		UpdatedAtJira:  parseJiraTime(fields.Get("updated").String()),
		Raw:            append([]byte(nil), raw...),
	}, nil
}

func parseJiraTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(jiraTimeLayout, value)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, value); err != nil {
			return nil
		}
	}
	utc := t.UTC()
	return &utc
}
