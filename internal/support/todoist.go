// Package support forwards help-desk requests to Todoist as tasks.
package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"itam-api/internal/models"
)

// ErrNotConfigured is returned when no API token or project is set.
var ErrNotConfigured = errors.New("support tracker is not configured")

// Label attached to every task created here.
const Label = "support-ticket"

// UpstreamError is a non-2xx answer from Todoist.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("todoist returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL   string
	token     string
	projectID string
	http      *http.Client
}

func NewClient(baseURL, token, projectID string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		projectID: projectID,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.projectID != ""
}

type taskRequest struct {
	Content     string   `json:"content"`
	Description string   `json:"description"`
	ProjectID   string   `json:"project_id"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels"`
}

type taskResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Priority maps Low/Medium/High to Todoist priorities 1 to 3. Anything else is 1.
func Priority(p string) int {
	switch p {
	case "Medium":
		return 2
	case "High":
		return 3
	}
	return 1
}

// Description prefixes the related asset, when given, to the description.
func Description(asset, description string) string {
	if asset = strings.TrimSpace(asset); asset != "" {
		return "**Related Asset:** " + asset + "\n\n" + description
	}
	return description
}

// CreateTask posts req as a new task and returns its id and URL.
func (c *Client) CreateTask(ctx context.Context, req models.SupportTicketRequest) (*models.SupportTicketResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(taskRequest{
		Content:     req.Subject,
		Description: Description(req.Asset, req.Description),
		ProjectID:   c.projectID,
		Priority:    Priority(req.Priority),
		Labels:      []string{Label},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("todoist request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw, resp.Status)}
	}

	var task taskResponse
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode todoist task: %w", err)
	}
	return &models.SupportTicketResponse{TaskID: task.ID, URL: task.URL}, nil
}

// upstreamMessage prefers a JSON "message" field, then the raw body text.
func upstreamMessage(raw []byte, status string) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return status
}
