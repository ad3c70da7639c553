package models

import (
	"encoding/json"
	"time"
)

// ActionStatus tracks a remediation action through its lifecycle.
type ActionStatus string

const (
	StatusProposed  ActionStatus = "proposed"
	StatusApproved  ActionStatus = "approved"
	StatusExecuting ActionStatus = "executing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
	StatusRejected  ActionStatus = "rejected"
)

// Valid reports whether s is a known action status.
func (s ActionStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusApproved, StatusExecuting, StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// RemediationAction is a proposed, approvable, executable corrective
// operation tied to a finding. Status only moves forward along
// proposed -> approved -> executing -> completed|failed, with
// proposed -> rejected as the other terminal branch.
type RemediationAction struct {
	ID           string          `json:"id"`
	FindingID    string          `json:"finding_id"`
	ActionType   string          `json:"action_type"`
	Status       ActionStatus    `json:"status"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Params       json.RawMessage `json:"params"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ProposedAt   time.Time       `json:"proposed_at"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
