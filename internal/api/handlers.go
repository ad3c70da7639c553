package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/models"
	"github.com/infrainsight/infrainsight/internal/store"
)

const (
	defaultFindingsLimit = 100
	weeklyTrendDays      = 7
	weeklyTopFindings    = 10
)

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultFindingsLimit)
	findings, err := s.findings.ListFindings(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if findings == nil {
		findings = []models.Finding{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (s *Server) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	finding, err := s.findings.GetFinding(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, finding)
}

func (s *Server) handleDailyTrends(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 14)
	trends, err := s.findings.DailyTrends(days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trends == nil {
		trends = []store.TrendBucket{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

// WeeklyReport is the aggregate served at /api/reports/weekly.
type WeeklyReport struct {
	GeneratedAt    time.Time           `json:"generated_at"`
	SeverityCounts map[string]int      `json:"severity_counts"`
	Trends         []store.TrendBucket `json:"trends"`
	TopFindings    []models.Finding    `json:"top_findings"`
}

func (s *Server) handleWeeklyReport(w http.ResponseWriter, _ *http.Request) {
	counts, err := s.findings.SeverityCounts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	trends, err := s.findings.DailyTrends(weeklyTrendDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	top, err := s.findings.TopFindings(weeklyTopFindings)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report := WeeklyReport{
		GeneratedAt:    time.Now().UTC(),
		SeverityCounts: make(map[string]int, len(counts)),
		Trends:         trends,
		TopFindings:    top,
	}
	for sev, n := range counts {
		report.SeverityCounts["p"+strconv.Itoa(sev)] = n
	}
	if report.Trends == nil {
		report.Trends = []store.TrendBucket{}
	}
	if report.TopFindings == nil {
		report.TopFindings = []models.Finding{}
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	status := models.ActionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.writeError(w, pipeerrors.New(pipeerrors.KindInvalidInput, "list_actions",
			fmt.Errorf("%w: unknown status filter", pipeerrors.ErrInvalidInput)))
		return
	}
	actions, err := s.actions.ListActions(status, r.URL.Query().Get("finding_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if actions == nil {
		actions = []models.RemediationAction{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.actions.GetAction(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, action)
}

type reviewRequest struct {
	ApprovedBy string `json:"approved_by"`
}

func (s *Server) decodeReview(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ApprovedBy == "" {
		s.writeError(w, pipeerrors.New(pipeerrors.KindInvalidInput, "review_action",
			fmt.Errorf("%w: approved_by is required", pipeerrors.ErrInvalidInput)))
		return "", false
	}
	return req.ApprovedBy, true
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	approvedBy, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	action, err := s.actions.ApproveAction(chi.URLParam(r, "id"), approvedBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info().Str("action_id", action.ID).Str("approved_by", approvedBy).Msg("Action approved")
	s.writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	approvedBy, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	action, err := s.actions.RejectAction(chi.URLParam(r, "id"), approvedBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info().Str("action_id", action.ID).Str("rejected_by", approvedBy).Msg("Action rejected")
	s.writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.executor.RunSingle(r.Context(), id)
	if err != nil {
		// The failure is recorded on the action; surface it to the caller
		// alongside the refreshed action state when we have it.
		if action, getErr := s.actions.GetAction(id); getErr == nil && action.Status == models.StatusFailed {
			s.writeJSON(w, http.StatusOK, map[string]any{"action": action, "error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}

	action, err := s.actions.GetAction(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"action": action, "result": result})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
