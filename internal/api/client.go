// Package api is the HTTP client for the maintenance task server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/fieldops/fieldtask/internal/task"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound returns true if err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. https://tasks.example.com.
	BaseURL string

	// TokenSource supplies the bearer credential. Nil sends no
	// Authorization header.
	TokenSource oauth2.TokenSource

	// Timeout per request (default: DefaultTimeout).
	Timeout time.Duration

	// Transport overrides the base round tripper, for tests.
	Transport http.RoundTripper
}

// Client talks to the task server's REST API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.TokenSource != nil {
		transport = &oauth2.Transport{Source: cfg.TokenSource, Base: transport}
	}

	return &Client{
		base: base,
		http: &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// BaseURL returns the server root the client was created with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ListTasks fetches the full task collection.
func (c *Client) ListTasks(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return tasks, nil
}

// CreateTask uploads t and returns the server's copy with its permanent id.
// A server that acknowledges with an empty body yields a zero Task.
func (c *Client) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	var created task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", t, &created); err != nil {
		return task.Task{}, err
	}
	return created, nil
}

// UpdateTask sends a partial update for task id.
func (c *Client) UpdateTask(ctx context.Context, id string, u task.Update) error {
	return c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), u, nil)
}

// DeleteTask deletes task id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// AddNote appends a note to task taskID.
func (c *Client) AddNote(ctx context.Context, taskID, content string) (task.Note, error) {
	var note task.Note
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/notes", body, &note); err != nil {
		return task.Note{}, err
	}
	return note, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}
	// An empty 2xx body is a bare acknowledgement.
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
