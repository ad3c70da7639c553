package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/models"
)

// ProposeActionIfAbsent creates a remediation action in state proposed for
// the given finding, unless an action with the same (finding_id,
// action_type) already exists in any status. Returns nil when the proposal
// was deduplicated away.
//
// The existence check deliberately ignores status: a rejected or completed
// action of the same type blocks re-proposal for that finding.
func (s *Store) ProposeActionIfAbsent(findingID string, draft models.ProposedActionDraft) (*models.RemediationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin propose action: %w", err)
	}
	defer tx.Rollback()

	action, err := s.proposeIfAbsentTx(tx, findingID, draft, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit propose action: %w", err)
	}
	return action, nil
}

func (s *Store) proposeIfAbsentTx(tx *sql.Tx, findingID string, draft models.ProposedActionDraft, now time.Time) (*models.RemediationAction, error) {
	if findingID == "" || draft.ActionType == "" {
		return nil, pipeerrors.New(pipeerrors.KindInvalidInput, "propose_action",
			fmt.Errorf("%w: finding id and action type required", pipeerrors.ErrInvalidInput))
	}

	var exists int
	err := tx.QueryRow(`SELECT COUNT(*) FROM remediation_actions WHERE finding_id = ? AND action_type = ?`,
		findingID, draft.ActionType).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check existing action %s/%s: %w", findingID, draft.ActionType, err)
	}
	if exists > 0 {
		return nil, nil
	}

	action := &models.RemediationAction{
		ID:          uuid.New().String(),
		FindingID:   findingID,
		ActionType:  draft.ActionType,
		Status:      models.StatusProposed,
		Title:       draft.Title,
		Description: draft.Description,
		Params:      draft.Params,
		ProposedAt:  now,
	}
	_, err = tx.Exec(`
		INSERT INTO remediation_actions (id, finding_id, action_type, status, title, description, params, proposed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, action.ID, action.FindingID, action.ActionType, string(action.Status),
		action.Title, nullString(action.Description), rawOrEmpty(action.Params), action.ProposedAt)
	if err != nil {
		return nil, fmt.Errorf("insert proposed action %s/%s: %w", findingID, draft.ActionType, err)
	}
	return action, nil
}

// ApproveAction moves a proposed action to approved, stamping approved_at
// and approved_by. Any other current status yields ErrInvalidState.
func (s *Store) ApproveAction(id, approvedBy string) (*models.RemediationAction, error) {
	now := s.now()
	return s.transition("approve_action", id, `
		UPDATE remediation_actions
		SET status = ?, approved_at = ?, approved_by = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusApproved), now, approvedBy, id, string(models.StatusProposed))
}

// RejectAction moves a proposed action to rejected. Only approved_by is
// stamped; rejected actions carry no approval timestamp.
func (s *Store) RejectAction(id, approvedBy string) (*models.RemediationAction, error) {
	return s.transition("reject_action", id, `
		UPDATE remediation_actions
		SET status = ?, approved_by = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusRejected), approvedBy, id, string(models.StatusProposed))
}

// BeginExecution moves an approved action to executing and stamps
// executed_at.
func (s *Store) BeginExecution(id string) (*models.RemediationAction, error) {
	now := s.now()
	return s.transition("begin_execution", id, `
		UPDATE remediation_actions
		SET status = ?, executed_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusExecuting), now, id, string(models.StatusApproved))
}

// CompleteAction moves an executing action to completed, storing the
// executor result and clearing any stale error message.
func (s *Store) CompleteAction(id string, result json.RawMessage) (*models.RemediationAction, error) {
	now := s.now()
	return s.transition("complete_action", id, `
		UPDATE remediation_actions
		SET status = ?, completed_at = ?, result = ?, error_message = NULL
		WHERE id = ? AND status = ?
	`, string(models.StatusCompleted), now, rawOrEmpty(result), id, string(models.StatusExecuting))
}

// FailAction moves an executing action to failed, recording the error.
func (s *Store) FailAction(id, errorMessage string) (*models.RemediationAction, error) {
	now := s.now()
	return s.transition("fail_action", id, `
		UPDATE remediation_actions
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusFailed), now, errorMessage, id, string(models.StatusExecuting))
}

// transition runs one conditional status update. The WHERE clause carries
// both id and the required current status, so a concurrent transition that
// commits first makes this one a no-op; the zero-rows case is then
// disambiguated into not-found versus invalid-state.
func (s *Store) transition(op, id, query string, args ...any) (*models.RemediationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s %s rows affected: %w", op, id, err)
	}
	if n == 0 {
		var current string
		err := s.db.QueryRow(`SELECT status FROM remediation_actions WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return nil, pipeerrors.NotFound(op, id)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s status check: %w", op, id, err)
		}
		return nil, pipeerrors.InvalidState(op, id, current)
	}
	return s.getActionLocked(id)
}

// GetAction returns one action by id.
func (s *Store) GetAction(id string) (*models.RemediationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActionLocked(id)
}

func (s *Store) getActionLocked(id string) (*models.RemediationAction, error) {
	action, err := scanAction(s.db.QueryRow(actionColumns+` FROM remediation_actions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, pipeerrors.NotFound("get_action", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get action %s: %w", id, err)
	}
	return action, nil
}

// ApprovedActions returns all actions currently approved, oldest proposal
// first so long-waiting actions execute before fresh ones.
func (s *Store) ApprovedActions() ([]models.RemediationAction, error) {
	return s.queryActions(actionColumns+` FROM remediation_actions WHERE status = ? ORDER BY proposed_at`,
		string(models.StatusApproved))
}

// ListActions returns actions with optional status and finding filters,
// newest proposal first.
func (s *Store) ListActions(status models.ActionStatus, findingID string) ([]models.RemediationAction, error) {
	query := actionColumns + ` FROM remediation_actions WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if findingID != "" {
		query += ` AND finding_id = ?`
		args = append(args, findingID)
	}
	query += ` ORDER BY proposed_at DESC`
	return s.queryActions(query, args...)
}

func (s *Store) queryActions(query string, args ...any) ([]models.RemediationAction, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []models.RemediationAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const actionColumns = `SELECT id, finding_id, action_type, status, title, description,
	params, result, error_message, proposed_at, approved_at, approved_by, executed_at, completed_at`

func scanAction(row rowScanner) (*models.RemediationAction, error) {
	var a models.RemediationAction
	var status string
	var description, result, errorMessage, approvedBy sql.NullString
	var params string
	var approvedAt, executedAt, completedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.FindingID, &a.ActionType, &status, &a.Title, &description,
		&params, &result, &errorMessage, &a.ProposedAt, &approvedAt, &approvedBy,
		&executedAt, &completedAt); err != nil {
		return nil, err
	}
	a.Status = models.ActionStatus(status)
	a.Description = description.String
	a.Params = json.RawMessage(params)
	if result.Valid {
		a.Result = json.RawMessage(result.String)
	}
	a.ErrorMessage = errorMessage.String
	a.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		a.ApprovedAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		a.ExecutedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}
