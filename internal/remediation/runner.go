package remediation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
	"github.com/infrainsight/infrainsight/internal/metrics"
	"github.com/infrainsight/infrainsight/internal/models"
)

// ActionStore is the slice of the action repository the runner needs.
type ActionStore interface {
	ApprovedActions() ([]models.RemediationAction, error)
	GetAction(id string) (*models.RemediationAction, error)
	BeginExecution(id string) (*models.RemediationAction, error)
	CompleteAction(id string, result json.RawMessage) (*models.RemediationAction, error)
	FailAction(id, errorMessage string) (*models.RemediationAction, error)
}

// BatchResult summarizes one approved-batch pass.
type BatchResult struct {
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// Runner drives approved actions through execution. Each action is
// isolated: a missing executor or a startup failure marks that action
// failed and the rest of the batch keeps going.
type Runner struct {
	actions     ActionStore
	registry    *Registry
	concurrency int
	callTimeout time.Duration
	logger      zerolog.Logger
}

// NewRunner wires the runner to its stores. concurrency bounds how many
// actions execute at once; callTimeout bounds each action's executor call.
func NewRunner(actions ActionStore, registry *Registry, concurrency int, callTimeout time.Duration, logger zerolog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Runner{
		actions:     actions,
		registry:    registry,
		concurrency: concurrency,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// RunApprovedBatch executes every currently approved action.
func (r *Runner) RunApprovedBatch(ctx context.Context) (BatchResult, error) {
	approved, err := r.actions.ApprovedActions()
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Total: len(approved)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, action := range approved {
		g.Go(func() error {
			if _, err := r.executeOne(ctx, action); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			result.Executed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	r.logger.Info().
		Int("executed", result.Executed).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Approved-action batch finished")
	return result, nil
}

// RunSingle executes one action by id. The action must currently be
// approved; anything else is rejected before any state is touched.
func (r *Runner) RunSingle(ctx context.Context, id string) (json.RawMessage, error) {
	action, err := r.actions.GetAction(id)
	if err != nil {
		return nil, err
	}
	if action.Status != models.StatusApproved {
		return nil, pipeerrors.InvalidState("run_single_action", id, string(action.Status))
	}
	return r.executeOne(ctx, *action)
}

// executeOne moves one action executing -> completed|failed. The returned
// error reflects the action's outcome; the state transition that records
// it has already happened.
func (r *Runner) executeOne(ctx context.Context, action models.RemediationAction) (json.RawMessage, error) {
	logger := r.logger.With().
		Str("action_id", action.ID).
		Str("action_type", action.ActionType).
		Logger()

	if _, err := r.actions.BeginExecution(action.ID); err != nil {
		// Lost the status race to a concurrent runner; nothing to record.
		logger.Warn().Err(err).Msg("Could not begin execution")
		return nil, err
	}

	executor, err := r.registry.Get(action.ActionType)
	if err != nil {
		return nil, r.fail(logger, action, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	result, err := executor.Execute(callCtx, action.Params)
	if err != nil {
		return nil, r.fail(logger, action, err)
	}

	if _, err := r.actions.CompleteAction(action.ID, result); err != nil {
		logger.Error().Err(err).Msg("Could not record action completion")
		return nil, err
	}
	metrics.ActionsFinished.WithLabelValues(action.ActionType, string(models.StatusCompleted)).Inc()
	logger.Info().Msg("Action completed")
	return result, nil
}

func (r *Runner) fail(logger zerolog.Logger, action models.RemediationAction, cause error) error {
	if _, err := r.actions.FailAction(action.ID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Could not record action failure")
		return err
	}
	metrics.ActionsFinished.WithLabelValues(action.ActionType, string(models.StatusFailed)).Inc()
	logger.Warn().Err(cause).Msg("Action failed")
	return cause
}
