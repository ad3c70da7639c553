package models

import (
	"encoding/json"
	"time"
)

// Finding is a deduplicated, severity-ranked observation produced by a
// detector. The (Type, Fingerprint) pair is its natural key: repeated
// detector matches for the same underlying condition update the existing
// row instead of creating a new one.
type Finding struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Fingerprint string          `json:"fingerprint"`
	Severity    int             `json:"severity"`   // 0..3, P0 most severe
	Confidence  int             `json:"confidence"` // 0..100
	ServiceID   string          `json:"service_id,omitempty"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary,omitempty"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	Remediation json.RawMessage `json:"remediation,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FindingDraft carries everything a detector knows about a finding; the
// repository assigns identity and timestamps on upsert.
type FindingDraft struct {
	Type           string
	Fingerprint    string
	Severity       int
	Confidence     int
	ServiceID      string
	Title          string
	Summary        string
	Evidence       json.RawMessage
	Remediation    json.RawMessage
	ProposedAction *ProposedActionDraft
}

// ProposedActionDraft is an optional remediation proposal attached to a
// finding draft. It becomes a RemediationAction in state proposed when the
// finding is upserted and no action of the same type exists for it yet.
type ProposedActionDraft struct {
	ActionType  string
	Title       string
	Description string
	Params      json.RawMessage
}
