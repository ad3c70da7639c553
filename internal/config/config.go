// Package config loads pipeline settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all settings for the pipeline binaries.
type Config struct {
	DataDir   string
	LogLevel  string
	LogFormat string
	HTTPAddr  string

	// Jira connection
	JiraBaseURL     string
	JiraEmail       string
	JiraAPIToken    string
	JiraProjectKeys []string
	JiraJQLExtra    string
	JiraMaxIssues   int

	// Kubernetes connection
	KubeconfigPath  string
	KubeContext     string
	NamespaceFilter []string
	MaxEvents       int

	// Detector thresholds
	BacklogAgingDays    int
	PodRestartThreshold int

	// Execution
	ExecutorConcurrency int
	ExternalCallTimeout time.Duration
}

// Load reads .env (when present) and the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded settings from .env")
	}

	cfg := &Config{
		DataDir:             envString("INSIGHT_DATA_DIR", defaultDataDir()),
		LogLevel:            envString("LOG_LEVEL", "info"),
		LogFormat:           envString("LOG_FORMAT", "auto"),
		HTTPAddr:            envString("HTTP_ADDR", ":8686"),
		JiraBaseURL:         strings.TrimRight(envString("JIRA_BASE_URL", ""), "/"),
		JiraEmail:           envString("JIRA_EMAIL", ""),
		JiraAPIToken:        envString("JIRA_API_TOKEN", ""),
		JiraProjectKeys:     envList("JIRA_PROJECT_KEYS"),
		JiraJQLExtra:        envString("JIRA_JQL_EXTRA", ""),
		JiraMaxIssues:       envInt("JIRA_MAX_ISSUES", 200),
		KubeconfigPath:      envString("KUBECONFIG_PATH", ""),
		KubeContext:         envString("KUBE_CONTEXT", ""),
		NamespaceFilter:     envList("K8S_NAMESPACE_FILTER"),
		MaxEvents:           envInt("K8S_MAX_EVENTS", 500),
		BacklogAgingDays:    envInt("BACKLOG_AGING_DAYS", 30),
		PodRestartThreshold: envInt("POD_RESTART_THRESHOLD", 5),
		ExecutorConcurrency: envInt("EXECUTOR_CONCURRENCY", 4),
		ExternalCallTimeout: envDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second),
	}

	if cfg.ExecutorConcurrency < 1 {
		cfg.ExecutorConcurrency = 1
	}
	if cfg.ExternalCallTimeout <= 0 {
		cfg.ExternalCallTimeout = 15 * time.Second
	}
	if cfg.BacklogAgingDays < 1 {
		return nil, fmt.Errorf("BACKLOG_AGING_DAYS must be positive, got %d", cfg.BacklogAgingDays)
	}
	if cfg.PodRestartThreshold < 1 {
		return nil, fmt.Errorf("POD_RESTART_THRESHOLD must be positive, got %d", cfg.PodRestartThreshold)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory %q: %w", cfg.DataDir, err)
	}

	return cfg, nil
}

// DatabasePath returns the sqlite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "insight.db")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".insight")
	}
	return "./data"
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-integer environment value")
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring unparseable duration value")
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
