package models

import (
	"encoding/json"
	"time"
)

// JiraIssue is an ingested issue-tracker row. Key is the Jira issue key
// (e.g. OPS-123) and serves as the primary key for upserts.
type JiraIssue struct {
	Key            string          `json:"key"`
	IssueID        string          `json:"issue_id"`
	ProjectKey     string          `json:"project_key"`
	IssueType      string          `json:"issue_type,omitempty"`
	Status         string          `json:"status,omitempty"`
	StatusCategory string          `json:"status_category,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Assignee       string          `json:"assignee,omitempty"`
	Reporter       string          `json:"reporter,omitempty"`
	CreatedAtJira  *time.Time      `json:"created_at_jira,omitempty"`
	UpdatedAtJira  *time.Time      `json:"updated_at_jira,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	IngestedAt     time.Time       `json:"ingested_at"`
}

// PodSnapshot is a point-in-time observation of one pod. Snapshots are
// append-only; detectors read the most recent ones.
type PodSnapshot struct {
	ID           string          `json:"id"`
	Cluster      string          `json:"cluster,omitempty"`
	Namespace    string          `json:"namespace"`
	Pod          string          `json:"pod"`
	Node         string          `json:"node,omitempty"`
	Phase        string          `json:"phase,omitempty"`
	RestartCount int             `json:"restart_count"`
	Reason       string          `json:"reason,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ClusterEvent is an ingested cluster event, upserted by namespace:name.
type ClusterEvent struct {
	ID             string          `json:"id"`
	Cluster        string          `json:"cluster,omitempty"`
	Namespace      string          `json:"namespace"`
	Name           string          `json:"name"`
	Type           string          `json:"type,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Message        string          `json:"message,omitempty"`
	InvolvedKind   string          `json:"involved_kind,omitempty"`
	InvolvedName   string          `json:"involved_name,omitempty"`
	FirstTimestamp *time.Time      `json:"first_timestamp,omitempty"`
	LastTimestamp  *time.Time      `json:"last_timestamp,omitempty"`
	Count          int             `json:"count"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	IngestedAt     time.Time       `json:"ingested_at"`
}
