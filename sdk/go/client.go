package opsightsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Opsight HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	DisplayName   string  `json:"display_name,omitempty"`
	Role          string  `json:"role"`
	GroupID       *string `json:"group_id,omitempty"`
	IdentityClass *string `json:"identity_class,omitempty"`
	IsActive      bool    `json:"is_active"`
}

// Task represents a task with its progress fields.
type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	TaskKind          string   `json:"task_kind"`
	AssignmentKind    string   `json:"assignment_kind"`
	Status            string   `json:"status"`
	Priority          string   `json:"priority"`
	TargetValue       *float64 `json:"target_value,omitempty"`
	CurrentValue      float64  `json:"current_value"`
	ChainTargetCount  *int     `json:"chain_target_count,omitempty"`
	ChainCurrentCount int      `json:"chain_current_count"`
	AggregateProgress float64  `json:"aggregate_progress"`
	ParticipantCount  int      `json:"participant_count"`
	PersonalProgress  *float64 `json:"personal_progress,omitempty"`
}

// ChainEntry is a single chain contribution with its position.
type ChainEntry struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	UserID     string `json:"user_id"`
	ExternalID string `json:"external_id"`
	Sequence   int    `json:"sequence"`
	CreatedAt  string `json:"created_at"`
}

// Report represents a daily report.
type Report struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	WorkDate        string   `json:"work_date"`
	Title           string   `json:"title"`
	Content         string   `json:"content,omitempty"`
	WorkHours       *float64 `json:"work_hours,omitempty"`
	MoodScore       *int     `json:"mood_score,omitempty"`
	EfficiencyScore *int     `json:"efficiency_score,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTasks wraps task listings with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedReports wraps report listings with cursors.
type PaginatedReports struct {
	Items      []Report `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// Login exchanges the configured credential (bearer JWT or API key) for an
// opaque session token and installs it on the client.
func (c *Client) Login(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// LoginWithUsername opens a session for the named user without prior
// credentials and installs the returned token on the client.
func (c *Client) LoginWithUsername(ctx context.Context, username string) (User, string, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"username": username}, &resp); err != nil {
		return User{}, "", err
	}
	c.BearerToken = resp.Token
	return resp.User, resp.Token, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateTask creates a task assigned to everyone by default.
func (c *Client) CreateTask(ctx context.Context, title, taskKind, assignmentKind string, extra map[string]any) (Task, error) {
	body := map[string]any{
		"title":           title,
		"task_kind":       taskKind,
		"assignment_kind": assignmentKind,
	}
	for k, v := range extra {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task with aggregated progress.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Tasks returns a page of the caller's visible tasks.
func (c *Client) Tasks(ctx context.Context, limit int, cursor string) (PaginatedTasks, error) {
	endpoint := "tasks"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordAmount adds to an amount task and returns the refreshed view.
func (c *Client) RecordAmount(ctx context.Context, taskID string, value float64, note string) (Task, error) {
	body := map[string]any{"value": value}
	if note != "" {
		body["note"] = note
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/amount", body, &resp)
	return resp, err
}

// RecordQuantity adds whole units to a quantity task.
func (c *Client) RecordQuantity(ctx context.Context, taskID string, value float64, note string) (Task, error) {
	body := map[string]any{"value": value}
	if note != "" {
		body["note"] = note
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/quantity", body, &resp)
	return resp, err
}

// AppendChainEntry appends to a chain task and returns the entry with its
// assigned sequence number.
func (c *Client) AppendChainEntry(ctx context.Context, taskID, externalID string) (ChainEntry, error) {
	body := map[string]any{"external_id": externalID}
	var resp ChainEntry
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/chain", body, &resp)
	return resp, err
}

// CompleteCheckbox marks a checkbox task done for the caller.
func (c *Client) CompleteCheckbox(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/checkbox", map[string]any{}, &resp)
	return resp, err
}

// SubmitReport upserts the caller's daily report for the given date
// (empty date means today).
func (c *Client) SubmitReport(ctx context.Context, workDate, title, content string) (Report, error) {
	body := map[string]any{"title": title}
	if workDate != "" {
		body["work_date"] = workDate
	}
	if content != "" {
		body["content"] = content
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", body, &resp)
	return resp, err
}

// Reports returns a page of reports visible to the caller.
func (c *Client) Reports(ctx context.Context, limit int, cursor string) (PaginatedReports, error) {
	endpoint := "reports"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedReports
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
