// ABOUTME: HTTP client for the Draftroom platform assistant endpoints.
// ABOUTME: Submits questions (JSON or SSE streaming), fetches history, creates tasks.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// AskRequest is the JSON body for the assistant question endpoint.
type AskRequest struct {
	Question  string   `json:"question"`
	Reasoning bool     `json:"reasoning"`
	Scope     []string `json:"scope,omitempty"`
	Context   string   `json:"context,omitempty"`
}

// Citation references a source the assistant drew on. Origin is either
// "resource" or "message".
type Citation struct {
	Origin   string `json:"origin"`
	OriginID string `json:"origin_id"`
	Label    string `json:"label"`
}

// AssistantResponse is the structured answer returned by the assistant.
// ExchangeID is the server-assigned id of the persisted exchange; clients
// adopt it in place of their optimistic local id.
type AssistantResponse struct {
	ExchangeID    string             `json:"exchange_id,omitempty"`
	Message       string             `json:"message"`
	Citations     []Citation         `json:"citations,omitempty"`
	ReasoningUsed bool               `json:"reasoning_used"`
	Model         string             `json:"model,omitempty"`
	Usage         map[string]float64 `json:"usage,omitempty"`
}

// Author identifies who asked a question.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryEntry is one persisted exchange from the server-side history.
type HistoryEntry struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Response  AssistantResponse `json:"response"`
	CreatedAt time.Time         `json:"created_at"`
	Author    *Author           `json:"author,omitempty"`
}

// Channel is one discussion channel within a project.
type Channel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic,omitempty"`
}

// TaskRequest is the body for the task creation endpoint.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Code)
}

// Client talks to the Draftroom backend with bearer token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the given base URL. Pass nil logger for default.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		logger:  logger.With("component", "api"),
	}
}

// SubmitQuestion sends a question and waits for the complete structured
// answer (no streaming).
func (c *Client) SubmitQuestion(ctx context.Context, projectID, channelID string, req AskRequest) (*AssistantResponse, error) {
	url := fmt.Sprintf("%s/api/projects/%s/channels/%s/assistant", c.baseURL, projectID, channelID)

	resp, err := c.post(ctx, url, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out AssistantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing assistant response: %w", err)
	}
	return &out, nil
}

// StreamQuestion sends a question requesting a streaming response. The
// returned channel delivers token, result, and error events in arrival
// order and is closed when the stream ends. Malformed frames are logged
// and skipped, never fatal.
func (c *Client) StreamQuestion(ctx context.Context, projectID, channelID string, req AskRequest) (<-chan StreamEvent, error) {
	url := fmt.Sprintf("%s/api/projects/%s/channels/%s/assistant?stream=true", c.baseURL, projectID, channelID)

	resp, err := c.post(ctx, url, req, "text/event-stream")
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		c.readStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// AssistantHistory fetches the persisted exchange history for a channel,
// ordered oldest first.
func (c *Client) AssistantHistory(ctx context.Context, projectID, channelID string) ([]HistoryEntry, error) {
	url := fmt.Sprintf("%s/api/projects/%s/channels/%s/assistant/history", c.baseURL, projectID, channelID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.auth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return entries, nil
}

// Channels lists the discussion channels of a project.
func (c *Client) Channels(ctx context.Context, projectID string) ([]Channel, error) {
	url := fmt.Sprintf("%s/api/projects/%s/channels", c.baseURL, projectID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.auth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching channels: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var channels []Channel
	if err := json.NewDecoder(resp.Body).Decode(&channels); err != nil {
		return nil, fmt.Errorf("parsing channels: %w", err)
	}
	return channels, nil
}

// CreateTask creates a project task, used when a suggested action of type
// create_task is accepted.
func (c *Client) CreateTask(ctx context.Context, projectID string, task TaskRequest) error {
	url := fmt.Sprintf("%s/api/projects/%s/tasks", c.baseURL, projectID)

	resp, err := c.post(ctx, url, task, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// post issues an authenticated JSON POST.
func (c *Client) post(ctx context.Context, url string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// checkStatus maps non-2xx responses to a StatusError, extracting the
// server's error message when the body is JSON.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := ""
	if resp.Header.Get("Content-Type") == "application/json" {
		var errResp map[string]string
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errResp); err == nil {
			msg = errResp["error"]
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
