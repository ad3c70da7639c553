// Command insight runs the detection-to-remediation pipeline: signal
// ingestion, rule detectors, and the approval-gated action executor.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/infrainsight/infrainsight/internal/config"
	"github.com/infrainsight/infrainsight/internal/jira"
	"github.com/infrainsight/infrainsight/internal/kube"
	"github.com/infrainsight/infrainsight/internal/logging"
	"github.com/infrainsight/infrainsight/internal/store"
	"k8s.io/client-go/kubernetes"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "insight",
		Short:   "Infrastructure insight pipeline",
		Long:    "Ingests tracker and cluster signals, raises findings, and executes approved remediations.",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		newIngestJiraCmd(),
		newIngestK8sCmd(),
		newRunDetectorsCmd(),
		newExecuteActionsCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the pieces every subcommand needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	logger zerolog.Logger
}

func newApp(component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Init(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: component,
	})

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DatabasePath(), err)
	}

	return &app{cfg: cfg, store: st, logger: logger}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close store")
	}
}

// jiraClient builds a tracker client, or nil when the connection is not
// configured.
func (a *app) jiraClient() (*jira.Client, error) {
	if a.cfg.JiraBaseURL == "" {
		return nil, nil
	}
	return jira.NewClient(jira.Config{
		BaseURL:  a.cfg.JiraBaseURL,
		Email:    a.cfg.JiraEmail,
		APIToken: a.cfg.JiraAPIToken,
		Timeout:  a.cfg.ExternalCallTimeout,
	})
}

// kubeClientset connects to the cluster, or returns nil when no cluster
// is reachable from this environment.
func (a *app) kubeClientset() (kubernetes.Interface, string) {
	clientset, contextName, err := kube.NewClientset(a.cfg.KubeconfigPath, a.cfg.KubeContext)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Kubernetes cluster not reachable")
		return nil, ""
	}
	return clientset, contextName
}
