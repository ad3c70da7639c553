// Package api exposes the findings and remediation workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/models"
	"github.com/infrainsight/infrainsight/internal/store"
)

// FindingStore is the read surface the API needs for findings.
type FindingStore interface {
	ListFindings(limit int) ([]models.Finding, error)
	GetFinding(id string) (*models.Finding, error)
	SeverityCounts() (map[int]int, error)
	DailyTrends(days int) ([]store.TrendBucket, error)
	TopFindings(limit int) ([]models.Finding, error)
}

// ActionStore is the action surface the API needs: listing plus the
// approval transitions.
type ActionStore interface {
	ListActions(status models.ActionStatus, findingID string) ([]models.RemediationAction, error)
	GetAction(id string) (*models.RemediationAction, error)
	ApproveAction(id, approvedBy string) (*models.RemediationAction, error)
	RejectAction(id, approvedBy string) (*models.RemediationAction, error)
}

// ActionExecutor runs one approved action on demand.
type ActionExecutor interface {
	RunSingle(ctx context.Context, id string) (json.RawMessage, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	findings FindingStore
	actions  ActionStore
	executor ActionExecutor
	logger   zerolog.Logger
}

func NewServer(findings FindingStore, actions ActionStore, executor ActionExecutor, logger zerolog.Logger) *Server {
	return &Server{
		findings: findings,
		actions:  actions,
		executor: executor,
		logger:   logger,
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/findings", s.handleListFindings)
		r.Get("/findings/trends/daily", s.handleDailyTrends)
		r.Get("/findings/{id}", s.handleGetFinding)
		r.Get("/reports/weekly", s.handleWeeklyReport)

		r.Get("/actions", s.handleListActions)
		r.Get("/actions/{id}", s.handleGetAction)
		r.Post("/actions/{id}/approve", s.handleApprove)
		r.Post("/actions/{id}/reject", s.handleReject)
		r.Post("/actions/{id}/execute", s.handleExecute)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the pipeline error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case pipeerrors.Is(err, pipeerrors.ErrNotFound):
		status = http.StatusNotFound
	case pipeerrors.Is(err, pipeerrors.ErrInvalidState):
		status = http.StatusConflict
	case pipeerrors.Is(err, pipeerrors.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
