package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/resilience"
)

const (
	DefaultBaseURL  = "https://api.workiz.com/api/v1"
	DefaultPageSize = 100
)

// Config configures the field-service API client.
type Config struct {
	BaseURL  string
	PageSize int
}

// Client talks to the field-service API. Each call is a single bounded
// invocation; retries and breaker gating belong to the caller.
type Client struct {
	baseURL  string
	pageSize int
	invoker  *resilience.Invoker
}

func NewClient(cfg Config, invoker *resilience.Invoker) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		invoker:  invoker,
	}
}

type envelope struct {
	Flag *bool             `json:"flag"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

// ListJobs fetches up to one page of jobs scheduled on or after since.
func (c *Client) ListJobs(ctx context.Context, token string, since time.Time) ([]models.JobRecord, error) {
	q := url.Values{}
	q.Set("start_date", since.Format("2006-01-02"))
	q.Set("offset", "0")
	q.Set("records", strconv.Itoa(c.pageSize))
	q.Set("only_open", "false")
	endpoint := fmt.Sprintf("%s/%s/job/all/?%s", c.baseURL, url.PathEscape(token), q.Encode())

	resp, err := c.invoker.Invoke(ctx, getter(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	items, err := decodeItems(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}

	jobs := make([]models.JobRecord, 0, len(items))
	for i, item := range items {
		job, err := parseJob(item)
		if err != nil {
			return nil, fmt.Errorf("job %d in list: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob fetches one job. It returns resilience.ErrNotFound when the
// upstream no longer knows the UUID.
func (c *Client) GetJob(ctx context.Context, token, uuid string) (*models.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/job/get/%s/", c.baseURL, url.PathEscape(token), url.PathEscape(uuid))

	resp, err := c.invoker.Invoke(ctx, getter(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", uuid, err)
	}

	items, err := decodeItems(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", uuid, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("job %s: %w", uuid, resilience.ErrNotFound)
	}

	job, err := parseJob(items[0])
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", uuid, err)
	}
	return &job, nil
}

func getter(endpoint string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
}

// decodeItems accepts either the {"flag":..,"data":[..]} envelope or a bare array.
func decodeItems(body []byte) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, resilience.NewValidationError("empty response body")
	}

	var raw []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, resilience.NewValidationError("malformed job array: %v", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, resilience.NewValidationError("malformed envelope: %v", err)
		}
		raw = env.Data
	}

	items := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		var item map[string]interface{}
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, resilience.NewValidationError("job is not an object: %v", err)
		}
		items = append(items, item)
	}
	return items, nil
}
