package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/models"
)

// DefaultClientTimeout covers a full extraction round trip.
const DefaultClientTimeout = 90 * time.Second

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error (%d)", e.Status)
}

// Client wraps HTTP calls to the taskchat API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Chat submits one message and returns the classified intent.
func (c *Client) Chat(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error) {
	var res engine.TurnResult
	if err := c.do(ctx, http.MethodPost, "/ai/chat", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Confirm executes a previously returned intent.
func (c *Client) Confirm(ctx context.Context, req engine.ConfirmRequest) (*engine.Outcome, error) {
	var out engine.Outcome
	if err := c.do(ctx, http.MethodPost, "/ai/confirm", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects fetches all projects.
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &projects)
	return projects, err
}

// ListUsers fetches all users.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, http.MethodGet, "/users", nil, &users)
	return users, err
}

// ListTasks fetches the tasks of a project, or the most recent tasks when
// projectID is zero.
func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]models.Task, error) {
	path := "/tasks"
	if projectID > 0 {
		path += "?projectId=" + strconv.FormatInt(projectID, 10)
	}
	var tasks []models.Task
	err := c.do(ctx, http.MethodGet, path, nil, &tasks)
	return tasks, err
}

// GetTask fetches a single task with its activity history.
func (c *Client) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+strconv.FormatInt(id, 10), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CheckHealth checks if the daemon is healthy.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	var health struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return false, err
	}
	return health.OK, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(data, apiErr); jerr != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
