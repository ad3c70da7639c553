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

// UpsertFinding inserts or updates a finding keyed by (type, fingerprint).
// On first match a fresh id and created_at are assigned; on re-match every
// mutable field is replaced and updated_at bumped while id and created_at
// stay fixed. When the draft carries a proposed action and this is the
// first open proposal of that type for the finding, the action is created
// in state proposed.
//
// Returns the stored finding and whether a row was newly created.
func (s *Store) UpsertFinding(draft models.FindingDraft) (*models.Finding, bool, error) {
	if draft.Type == "" || draft.Fingerprint == "" {
		return nil, false, pipeerrors.New(pipeerrors.KindInvalidInput, "upsert_finding",
			fmt.Errorf("%w: type and fingerprint required", pipeerrors.ErrInvalidInput))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin upsert finding: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRow(`SELECT id FROM findings WHERE type = ? AND fingerprint = ?`,
		draft.Type, draft.Fingerprint).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("lookup finding %s/%s: %w", draft.Type, draft.Fingerprint, err)
	}
	created := existingID == ""

	now := s.now()
	_, err = tx.Exec(`
		INSERT INTO findings (id, type, fingerprint, severity, confidence, service_id,
			title, summary, evidence, remediation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, fingerprint) DO UPDATE SET
			severity=excluded.severity,
			confidence=excluded.confidence,
			service_id=excluded.service_id,
			title=excluded.title,
			summary=excluded.summary,
			evidence=excluded.evidence,
			remediation=excluded.remediation,
			updated_at=excluded.updated_at
	`, uuid.New().String(), draft.Type, draft.Fingerprint, draft.Severity, draft.Confidence,
		nullString(draft.ServiceID), draft.Title, draft.Summary,
		rawOrEmpty(draft.Evidence), rawOrEmpty(draft.Remediation), now, now)
	if err != nil {
		return nil, false, fmt.Errorf("upsert finding %s/%s: %w", draft.Type, draft.Fingerprint, err)
	}

	finding, err := scanFinding(tx.QueryRow(
		findingColumns+` FROM findings WHERE type = ? AND fingerprint = ?`,
		draft.Type, draft.Fingerprint))
	if err != nil {
		return nil, false, fmt.Errorf("reload finding %s/%s: %w", draft.Type, draft.Fingerprint, err)
	}

	// A finding's proposed remediation must never be orphaned from its
	// governing finding, so the action row is created in the same
	// transaction as the finding upsert.
	if p := draft.ProposedAction; p != nil {
		if _, err := s.proposeIfAbsentTx(tx, finding.ID, *p, now); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit finding upsert: %w", err)
	}
	return finding, created, nil
}

// GetFinding returns one finding by id.
func (s *Store) GetFinding(id string) (*models.Finding, error) {
	finding, err := scanFinding(s.db.QueryRow(findingColumns+` FROM findings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, pipeerrors.NotFound("get_finding", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding %s: %w", id, err)
	}
	return finding, nil
}

// ListFindings returns up to limit findings, newest first.
func (s *Store) ListFindings(limit int) ([]models.Finding, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(findingColumns+` FROM findings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// SeverityCounts returns finding counts keyed by severity.
func (s *Store) SeverityCounts() (map[int]int, error) {
	rows, err := s.db.Query(`SELECT severity, COUNT(*) FROM findings GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("count findings by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var sev, n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

// TrendBucket is one day of finding counts by severity.
type TrendBucket struct {
	Day string `json:"day"`
	P0  int    `json:"p0"`
	P1  int    `json:"p1"`
	P2  int    `json:"p2"`
	P3  int    `json:"p3"`
}

// DailyTrends returns per-day severity counts for findings created in the
// last days days, oldest first.
func (s *Store) DailyTrends(days int) ([]TrendBucket, error) {
	if days <= 0 {
		days = 14
	}
	cutoff := s.now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT substr(created_at, 1, 10) AS day, severity, COUNT(*)
		FROM findings
		WHERE created_at >= ?
		GROUP BY day, severity
		ORDER BY day
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query daily trends: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]*TrendBucket)
	var order []string
	for rows.Next() {
		var day string
		var sev, n int
		if err := rows.Scan(&day, &sev, &n); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		b, ok := byDay[day]
		if !ok {
			b = &TrendBucket{Day: day}
			byDay[day] = b
			order = append(order, day)
		}
		switch sev {
		case 0:
			b.P0 = n
		case 1:
			b.P1 = n
		case 2:
			b.P2 = n
		case 3:
			b.P3 = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TrendBucket, 0, len(order))
	for _, day := range order {
		out = append(out, *byDay[day])
	}
	return out, nil
}

// TopFindings returns up to limit findings ordered most severe first,
// then newest first.
func (s *Store) TopFindings(limit int) ([]models.Finding, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(findingColumns+` FROM findings ORDER BY severity ASC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list top findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

const findingColumns = `SELECT id, type, fingerprint, severity, confidence, service_id,
	title, summary, evidence, remediation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*models.Finding, error) {
	var f models.Finding
	var serviceID, summary sql.NullString
	var evidence, remediation string
	if err := row.Scan(&f.ID, &f.Type, &f.Fingerprint, &f.Severity, &f.Confidence,
		&serviceID, &f.Title, &summary, &evidence, &remediation,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.ServiceID = serviceID.String
	f.Summary = summary.String
	f.Evidence = json.RawMessage(evidence)
	f.Remediation = json.RawMessage(remediation)
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
