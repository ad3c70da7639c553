package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infrainsight/infrainsight/internal/models"
)

type nullStr = sql.NullString

type nullTimeVal struct{ sql.NullTime }

func (n nullTimeVal) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// UpsertIssue inserts or refreshes one ingested Jira issue, keyed by the
// issue key.
func (s *Store) UpsertIssue(issue models.JiraIssue) error {
	if issue.IngestedAt.IsZero() {
		issue.IngestedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO jira_issues (key, issue_id, project_key, issue_type, status, status_category,
			priority, summary, assignee, reporter, created_at_jira, updated_at_jira, raw, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			issue_id=excluded.issue_id,
			project_key=excluded.project_key,
			issue_type=excluded.issue_type,
			status=excluded.status,
			status_category=excluded.status_category,
			priority=excluded.priority,
			summary=excluded.summary,
			assignee=excluded.assignee,
			reporter=excluded.reporter,
			created_at_jira=excluded.created_at_jira,
			updated_at_jira=excluded.updated_at_jira,
			raw=excluded.raw,
			ingested_at=excluded.ingested_at
	`, issue.Key, issue.IssueID, issue.ProjectKey, nullString(issue.IssueType),
		nullString(issue.Status), nullString(issue.StatusCategory), nullString(issue.Priority),
		nullString(issue.Summary), nullString(issue.Assignee), nullString(issue.Reporter),
		nullTime(issue.CreatedAtJira), nullTime(issue.UpdatedAtJira),
		rawOrEmpty(issue.Raw), issue.IngestedAt)
	if err != nil {
		return fmt.Errorf("upsert jira issue %s: %w", issue.Key, err)
	}
	return nil
}

// InsertPodSnapshot appends one pod observation. Snapshots are never
// updated; detectors read the most recent rows.
func (s *Store) InsertPodSnapshot(snap models.PodSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO pod_snapshots (id, cluster, namespace, pod, node, phase, restart_count, reason, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, nullString(snap.Cluster), snap.Namespace, snap.Pod, nullString(snap.Node),
		nullString(snap.Phase), snap.RestartCount, nullString(snap.Reason),
		rawOrEmpty(snap.Raw), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pod snapshot %s/%s: %w", snap.Namespace, snap.Pod, err)
	}
	return nil
}

// UpsertEvent inserts or refreshes one cluster event, keyed by
// namespace:name.
func (s *Store) UpsertEvent(ev models.ClusterEvent) error {
	if ev.ID == "" {
		ev.ID = ev.Namespace + ":" + ev.Name
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO cluster_events (id, cluster, namespace, name, type, reason, message,
			involved_kind, involved_name, first_timestamp, last_timestamp, count, raw, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type,
			reason=excluded.reason,
			message=excluded.message,
			involved_kind=excluded.involved_kind,
			involved_name=excluded.involved_name,
			first_timestamp=excluded.first_timestamp,
			last_timestamp=excluded.last_timestamp,
			count=excluded.count,
			raw=excluded.raw,
			ingested_at=excluded.ingested_at
	`, ev.ID, nullString(ev.Cluster), ev.Namespace, ev.Name, nullString(ev.Type),
		nullString(ev.Reason), nullString(ev.Message), nullString(ev.InvolvedKind),
		nullString(ev.InvolvedName), nullTime(ev.FirstTimestamp), nullTime(ev.LastTimestamp),
		ev.Count, rawOrEmpty(ev.Raw), ev.IngestedAt)
	if err != nil {
		return fmt.Errorf("upsert cluster event %s: %w", ev.ID, err)
	}
	return nil
}

// OpenIssuesOlderThan returns issues in the given status category whose
// tracker creation time is strictly before cutoff, capped at limit rows.
func (s *Store) OpenIssuesOlderThan(statusCategory string, cutoff time.Time, limit int) ([]models.JiraIssue, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`
		SELECT key, issue_id, project_key, issue_type, status, status_category, priority,
			summary, assignee, reporter, created_at_jira, updated_at_jira, ingested_at
		FROM jira_issues
		WHERE status_category = ? AND created_at_jira IS NOT NULL AND created_at_jira < ?
		LIMIT ?
	`, statusCategory, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query open issues: %w", err)
	}
	defer rows.Close()

	var out []models.JiraIssue
	for rows.Next() {
		var issue models.JiraIssue
		var issueType, status, category, priority, summary, assignee, reporter nullStr
		var createdAt, updatedAt nullTimeVal
		if err := rows.Scan(&issue.Key, &issue.IssueID, &issue.ProjectKey, &issueType, &status,
			&category, &priority, &summary, &assignee, &reporter,
			&createdAt, &updatedAt, &issue.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan jira issue row: %w", err)
		}
		issue.IssueType = issueType.String
		issue.Status = status.String
		issue.StatusCategory = category.String
		issue.Priority = priority.String
		issue.Summary = summary.String
		issue.Assignee = assignee.String
		issue.Reporter = reporter.String
		issue.CreatedAtJira = createdAt.ptr()
		issue.UpdatedAtJira = updatedAt.ptr()
		out = append(out, issue)
	}
	return out, rows.Err()
}

// RecentPodSnapshots returns the most recent limit pod snapshots, newest
// first.
func (s *Store) RecentPodSnapshots(limit int) ([]models.PodSnapshot, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := s.db.Query(`
		SELECT id, cluster, namespace, pod, node, phase, restart_count, reason, created_at
		FROM pod_snapshots
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pod snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.PodSnapshot
	for rows.Next() {
		var snap models.PodSnapshot
		var cluster, node, phase, reason nullStr
		if err := rows.Scan(&snap.ID, &cluster, &snap.Namespace, &snap.Pod, &node, &phase,
			&snap.RestartCount, &reason, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pod snapshot row: %w", err)
		}
		snap.Cluster = cluster.String
		snap.Node = node.String
		snap.Phase = phase.String
		snap.Reason = reason.String
		out = append(out, snap)
	}
	return out, rows.Err()
}
