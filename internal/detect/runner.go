package detect

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/infrainsight/infrainsight/internal/metrics"
	"github.com/infrainsight/infrainsight/internal/models"
)

// FindingWriter is the repository side the runner feeds drafts into.
type FindingWriter interface {
	UpsertFinding(draft models.FindingDraft) (*models.Finding, bool, error)
}

// RunResult summarizes one detection pass.
type RunResult struct {
	FindingsUpserted int `json:"findings_upserted"`
	DetectorFailures int `json:"detector_failures"`
}

// Runner executes every registered detector and upserts the resulting
// drafts. Detector failures are isolated: a broken detector is logged and
// counted while its siblings run to completion.
type Runner struct {
	detectors []Detector
	findings  FindingWriter
	logger    zerolog.Logger
}

func NewRunner(detectors []Detector, findings FindingWriter, logger zerolog.Logger) *Runner {
	return &Runner{detectors: detectors, findings: findings, logger: logger}
}

// RunAll runs all detectors, in parallel. Upserts are serialized by the
// store; the detectors only share the read-only signal store.
func (r *Runner) RunAll(ctx context.Context) (RunResult, error) {
	var (
		mu     sync.Mutex
		result RunResult
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, det := range r.detectors {
		g.Go(func() error {
			drafts, err := det.Run(ctx)
			if err != nil {
				r.logger.Error().Err(err).Str("detector", det.Name()).Msg("Detector run failed")
				metrics.DetectorFailures.WithLabelValues(det.Name()).Inc()
				mu.Lock()
				result.DetectorFailures++
				mu.Unlock()
				return nil
			}

			for _, draft := range drafts {
				finding, created, err := r.findings.UpsertFinding(draft)
				if err != nil {
					r.logger.Error().Err(err).
						Str("detector", det.Name()).
						Str("fingerprint", draft.Fingerprint).
						Msg("Finding upsert failed")
					metrics.DetectorFailures.WithLabelValues(det.Name()).Inc()
					mu.Lock()
					result.DetectorFailures++
					mu.Unlock()
					continue
				}
				metrics.FindingsUpserted.WithLabelValues(draft.Type).Inc()
				mu.Lock()
				result.FindingsUpserted++
				mu.Unlock()
				r.logger.Debug().
					Str("detector", det.Name()).
					Str("finding_id", finding.ID).
					Bool("created", created).
					Int("severity", finding.Severity).
					Msg("Finding upserted")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	r.logger.Info().
		Int("findings_upserted", result.FindingsUpserted).
		Int("detector_failures", result.DetectorFailures).
		Msg("Detection pass finished")
	return result, nil
}
