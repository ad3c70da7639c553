package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/infrainsight/infrainsight/internal/models"
)

const (
	backlogAgingName     = "backlog_aging"
	backlogStatusTodo    = "To Do"
	backlogQueryLimit    = 500
	backlogSampleSize    = 20
	backlogSeverityBreak = 20 // more matches than this bumps severity 3 -> 2
)

// BacklogAgingDetector flags projects whose "To Do" backlog contains items
// older than a day threshold. One finding per project; the proposed
// close-tickets action carries every matched key, not just the evidence
// sample.
type BacklogAgingDetector struct {
	reader SignalReader
	days   int
	nowFn  func() time.Time
}

func NewBacklogAgingDetector(reader SignalReader, days int) *BacklogAgingDetector {
	return &BacklogAgingDetector{reader: reader, days: days, nowFn: time.Now}
}

func (d *BacklogAgingDetector) Name() string { return backlogAgingName }

func (d *BacklogAgingDetector) Run(ctx context.Context) ([]models.FindingDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cutoff := d.nowFn().UTC().AddDate(0, 0, -d.days)
	issues, err := d.reader.OpenIssuesOlderThan(backlogStatusTodo, cutoff, backlogQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query aged backlog issues: %w", err)
	}
	if len(issues) == 0 {
		return nil, nil
	}

	buckets := make(map[string][]models.JiraIssue)
	for _, issue := range issues {
		buckets[issue.ProjectKey] = append(buckets[issue.ProjectKey], issue)
	}

	// Stable project order keeps repeated runs byte-identical.
	projects := make([]string, 0, len(buckets))
	for p := range buckets {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	drafts := make([]models.FindingDraft, 0, len(projects))
	for _, project := range projects {
		group := buckets[project]

		keys := make([]string, 0, len(group))
		for _, issue := range group {
			keys = append(keys, issue.Key)
		}
		sample := keys
		if len(sample) > backlogSampleSize {
			sample = sample[:backlogSampleSize]
		}

		severity := 3
		if len(group) > backlogSeverityBreak {
			severity = 2
		}

		evidence, err := json.Marshal(map[string]any{
			"rule":              fmt.Sprintf("status_category == 'To Do' AND created_at < now-%dd", d.days),
			"count":             len(group),
			"sample_issue_keys": sample,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal backlog evidence for %s: %w", project, err)
		}
		remediation, err := json.Marshal(map[string]any{
			"steps": []string{
				"Define triage SLA by priority.",
				"Run weekly backlog grooming with explicit close/park decisions.",
				"Enforce required fields at intake (priority, owner, acceptance criteria).",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal backlog remediation for %s: %w", project, err)
		}
		params, err := json.Marshal(map[string]any{"issue_keys": keys})
		if err != nil {
			return nil, fmt.Errorf("marshal close-tickets params for %s: %w", project, err)
		}

		drafts = append(drafts, models.FindingDraft{
			Type:        backlogAgingName,
			Fingerprint: fmt.Sprintf("%s:todo_older_than_%dd", project, d.days),
			Severity:    severity,
			Confidence:  80,
			Title:       fmt.Sprintf("Backlog aging in %s: %d To Do items older than %d days", project, len(group), d.days),
			Summary:     "Stale tickets in To Do suggest triage debt and unclear prioritisation.",
			Evidence:    evidence,
			Remediation: remediation,
			ProposedAction: &models.ProposedActionDraft{
				ActionType:  "close_jira_tickets",
				Title:       fmt.Sprintf("Close %d stale To Do tickets in %s", len(group), project),
				Description: fmt.Sprintf("Transition %d tickets older than %d days to Done/Closed.", len(group), d.days),
				Params:      params,
			},
		})
	}
	return drafts, nil
}
