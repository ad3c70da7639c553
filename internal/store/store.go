// Package store persists signals, findings, and remediation actions in
// sqlite. All writes go through a single connection so the unique-key
// upserts and conditional status updates below are serialized.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the pipeline database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	nowFn  func() time.Time
}

// Open opens or creates the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: path, nowFn: time.Now}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("initialize schema for %q: %w (close: %v)", path, err, closeErr)
		}
		return nil, fmt.Errorf("initialize schema for %q: %w", path, err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jira_issues (
		key TEXT PRIMARY KEY,
		issue_id TEXT NOT NULL,
		project_key TEXT NOT NULL,
		issue_type TEXT,
		status TEXT,
		status_category TEXT,
		priority TEXT,
		summary TEXT,
		assignee TEXT,
		reporter TEXT,
		created_at_jira DATETIME,
		updated_at_jira DATETIME,
		raw TEXT NOT NULL DEFAULT '{}',
		ingested_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jira_issues_status_category ON jira_issues(status_category);
	CREATE INDEX IF NOT EXISTS idx_jira_issues_project ON jira_issues(project_key);

	CREATE TABLE IF NOT EXISTS pod_snapshots (
		id TEXT PRIMARY KEY,
		cluster TEXT,
		namespace TEXT NOT NULL,
		pod TEXT NOT NULL,
		node TEXT,
		phase TEXT,
		restart_count INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		raw TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pod_snapshots_created ON pod_snapshots(created_at);

	CREATE TABLE IF NOT EXISTS cluster_events (
		id TEXT PRIMARY KEY,
		cluster TEXT,
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT,
		reason TEXT,
		message TEXT,
		involved_kind TEXT,
		involved_name TEXT,
		first_timestamp DATETIME,
		last_timestamp DATETIME,
		count INTEGER NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '{}',
		ingested_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		severity INTEGER NOT NULL,
		confidence INTEGER NOT NULL,
		service_id TEXT,
		title TEXT NOT NULL,
		summary TEXT,
		evidence TEXT NOT NULL DEFAULT '{}',
		remediation TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(type, fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_findings_created ON findings(created_at);

	CREATE TABLE IF NOT EXISTS remediation_actions (
		id TEXT PRIMARY KEY,
		finding_id TEXT NOT NULL REFERENCES findings(id),
		action_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'proposed',
		title TEXT NOT NULL,
		description TEXT,
		params TEXT NOT NULL DEFAULT '{}',
		result TEXT,
		error_message TEXT,
		proposed_at DATETIME NOT NULL,
		approved_at DATETIME,
		approved_by TEXT,
		executed_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_actions_finding_type ON remediation_actions(finding_id, action_type);
	CREATE INDEX IF NOT EXISTS idx_actions_status ON remediation_actions(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close database %q: %w", s.dbPath, err)
		}
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.nowFn().UTC()
}
