package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrainsight/infrainsight/internal/api"
	"github.com/infrainsight/infrainsight/internal/detect"
	"github.com/infrainsight/infrainsight/internal/ingest"
	"github.com/infrainsight/infrainsight/internal/remediation"
)

func newIngestJiraCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-jira",
		Short: "Pull recently updated tracker issues into the signal store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("ingest-jira")
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.jiraClient()
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("JIRA_BASE_URL, JIRA_EMAIL, and JIRA_API_TOKEN must be set")
			}

			ingester := ingest.NewJiraIngester(client, a.store, a.cfg.JiraProjectKeys,
				a.cfg.JiraJQLExtra, a.cfg.JiraMaxIssues, a.logger)
			count, err := ingester.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d issues\n", count)
			return nil
		},
	}
}

func newIngestK8sCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-k8s",
		Short: "Record pod snapshots and cluster events into the signal store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("ingest-k8s")
			if err != nil {
				return err
			}
			defer a.close()

			clientset, contextName := a.kubeClientset()
			if clientset == nil {
				return fmt.Errorf("no reachable kubernetes cluster")
			}

			ingester := ingest.NewClusterIngester(clientset, a.store, contextName,
				a.cfg.NamespaceFilter, a.cfg.MaxEvents, a.logger)
			pods, events, err := ingester.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %d pod snapshots, %d events\n", pods, events)
			return nil
		},
	}
}

func newRunDetectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-detectors",
		Short: "Run every detector over the signal store and upsert findings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("run-detectors")
			if err != nil {
				return err
			}
			defer a.close()

			runner := detect.NewRunner(
				detect.Builtin(a.store, a.cfg.BacklogAgingDays, a.cfg.PodRestartThreshold),
				a.store, a.logger)
			result, err := runner.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Upserted %d findings (%d detector failures)\n",
				result.FindingsUpserted, result.DetectorFailures)
			return nil
		},
	}
}

func newExecuteActionsCmd() *cobra.Command {
	var actionID string

	cmd := &cobra.Command{
		Use:   "execute-actions",
		Short: "Execute approved remediation actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("execute-actions")
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.buildActionRunner()
			if err != nil {
				return err
			}

			if actionID != "" {
				result, err := runner.RunSingle(cmd.Context(), actionID)
				if err != nil {
					return err
				}
				fmt.Printf("Action %s completed: %s\n", actionID, result)
				return nil
			}

			batch, err := runner.RunApprovedBatch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Executed %d of %d approved actions (%d failed)\n",
				batch.Executed, batch.Total, batch.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&actionID, "id", "", "execute a single approved action by id")
	return cmd
}

func newServeCmd() *cobra.Command {
	var detectInterval, executeInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the findings and actions API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("serve")
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.buildActionRunner()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if detectInterval > 0 {
				go a.detectLoop(ctx, detectInterval)
			}
			if executeInterval > 0 {
				go a.executeLoop(ctx, runner, executeInterval)
			}

			server := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           api.NewServer(a.store, a.store, runner, a.logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("HTTP server listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info().Msg("HTTP server stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&detectInterval, "detect-interval", 0,
		"run detectors on this interval (0 disables)")
	cmd.Flags().DurationVar(&executeInterval, "execute-interval", 0,
		"execute approved actions on this interval (0 disables)")
	return cmd
}

// buildActionRunner wires the executor registry. Executors whose backing
// client is unavailable are still registered; they fail their actions
// with a startup error instead of silently disappearing.
func (a *app) buildActionRunner() (*remediation.Runner, error) {
	jiraClient, err := a.jiraClient()
	if err != nil {
		return nil, err
	}
	clientset, _ := a.kubeClientset()

	registry, err := remediation.NewRegistry(
		remediation.NewCloseTicketsExecutor(jiraClient, a.logger),
		remediation.NewRestartPodsExecutor(clientset, a.logger),
		remediation.NewScaleDeploymentExecutor(clientset, a.logger),
	)
	if err != nil {
		return nil, err
	}

	return remediation.NewRunner(a.store, registry, a.cfg.ExecutorConcurrency,
		a.cfg.ExternalCallTimeout, a.logger), nil
}

func (a *app) detectLoop(ctx context.Context, interval time.Duration) {
	runner := detect.NewRunner(
		detect.Builtin(a.store, a.cfg.BacklogAgingDays, a.cfg.PodRestartThreshold),
		a.store, a.logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.RunAll(ctx); err != nil {
				a.logger.Error().Err(err).Msg("Scheduled detector pass failed")
			}
		}
	}
}

func (a *app) executeLoop(ctx context.Context, runner *remediation.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.RunApprovedBatch(ctx); err != nil {
				a.logger.Error().Err(err).Msg("Scheduled execution pass failed")
			}
		}
	}
}
