// Package jira is a minimal client for the Jira Cloud REST API, covering
// the search and issue-transition calls the pipeline needs.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to one Jira site with basic (email + API token) auth.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

// Config configures a Jira client.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	Timeout  time.Duration
}

// Transition is one workflow transition available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchPage is one page of a JQL search.
type SearchPage struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
}

// NewClient validates the connection settings and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("jira base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("jira base url %q is invalid: %w", cfg.BaseURL, err)
	}
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira email and api token are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    base,
		email:      cfg.Email,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Search runs one page of a JQL search, requesting changelog expansion.
func (c *Client) Search(ctx context.Context, jql string, startAt, maxResults int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))

	body, err := c.get(ctx, "/rest/api/3/search?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search page: %w", err)
	}
	return &page, nil
}

// Transitions lists the workflow transitions currently available on an
// issue.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	body, err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(issueKey)+"/transitions")
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", issueKey, err)
	}

	var payload struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode transitions for %s: %w", issueKey, err)
	}
	return payload.Transitions, nil
}

// ApplyTransition moves an issue through the given workflow transition.
func (c *Client) ApplyTransition(ctx context.Context, issueKey, transitionID string) error {
	payload, err := json.Marshal(map[string]any{
		"transition": map[string]string{"id": transitionID},
	})
	if err != nil {
		return fmt.Errorf("marshal transition payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rest/api/3/issue/"+url.PathEscape(issueKey)+"/transitions",
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build transition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apply transition to %s: %w", issueKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("apply transition to %s: %s", issueKey, readErrorBody(resp))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", readErrorBody(resp))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, trimmed)
}
