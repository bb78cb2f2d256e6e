package swbsdk

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

// Client is a minimal semantic workbench HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project is the brief plus readiness state.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Readiness   string `json:"readiness"`
	CreatedAt   string `json:"created_at"`
}

type Criterion struct {
	ID          string  `json:"id"`
	Position    int     `json:"position"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CompletedBy *string `json:"completed_by,omitempty"`
}

type Goal struct {
	ID        string      `json:"id"`
	Position  int         `json:"position"`
	Text      string      `json:"text"`
	Criteria  []Criterion `json:"criteria"`
	CreatedAt string      `json:"created_at"`
}

type InformationRequest struct {
	ID          string  `json:"id"`
	Requester   string  `json:"requester"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	Resolution  *string `json:"resolution,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ResolvedAt  *string `json:"resolved_at,omitempty"`
}

// ProjectInfo is the consistent snapshot returned by get_project_info.
type ProjectInfo struct {
	Project      *Project             `json:"project,omitempty"`
	Goals        []Goal               `json:"goals"`
	Requests     []InformationRequest `json:"requests"`
	OpenRequests int                  `json:"open_requests"`
}

type Suggestion struct {
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

type Detection struct {
	IsRequest   bool    `json:"is_information_request"`
	Reason      string  `json:"reason"`
	Title       string  `json:"potential_title"`
	Description string  `json:"potential_description"`
	Priority    string  `json:"suggested_priority"`
	Confidence  float64 `json:"confidence"`
}

type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateBrief creates the project brief.
func (c *Client) CreateBrief(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath("brief"), body, &resp)
	return resp, err
}

// Info returns the project snapshot. Use it to obtain request ids
// immediately before resolving.
func (c *Client) Info(ctx context.Context) (ProjectInfo, error) {
	var resp ProjectInfo
	err := c.do(ctx, http.MethodGet, c.projectPath("info"), nil, &resp)
	return resp, err
}

// AddGoal appends a goal with its success criteria.
func (c *Client) AddGoal(ctx context.Context, text string, criteria []string) (Goal, error) {
	body := map[string]any{
		"text":     text,
		"criteria": criteria,
	}
	var resp Goal
	err := c.do(ctx, http.MethodPost, c.projectPath("goals"), body, &resp)
	return resp, err
}

// CompleteCriterion marks a success criterion done.
func (c *Client) CompleteCriterion(ctx context.Context, goalID, criterionID string) (Criterion, error) {
	endpoint := c.projectPath(fmt.Sprintf("goals/%s/criteria/%s/complete", url.PathEscape(goalID), url.PathEscape(criterionID)))
	var resp Criterion
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateRequest opens an information request.
func (c *Client) CreateRequest(ctx context.Context, title, description, priority string) (InformationRequest, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	if priority != "" {
		body["priority"] = priority
	}
	var resp InformationRequest
	err := c.do(ctx, http.MethodPost, c.projectPath("requests"), body, &resp)
	return resp, err
}

// ResolveRequest resolves a request by its store-issued id.
func (c *Client) ResolveRequest(ctx context.Context, requestID, resolution string) (InformationRequest, error) {
	body := map[string]any{"resolution": resolution}
	endpoint := c.projectPath(fmt.Sprintf("requests/%s/resolve", url.PathEscape(requestID)))
	var resp InformationRequest
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// MarkReady transitions the project to READY_FOR_WORKING.
func (c *Client) MarkReady(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath("ready"), nil, &resp)
	return resp, err
}

// Suggest asks for the coordinator's recommended next step.
func (c *Client) Suggest(ctx context.Context) (Suggestion, error) {
	var resp Suggestion
	err := c.do(ctx, http.MethodGet, c.projectPath("suggest"), nil, &resp)
	return resp, err
}

// Detect classifies a team message.
func (c *Client) Detect(ctx context.Context, history []Message, message string) (Detection, error) {
	body := map[string]any{"message": message}
	if len(history) > 0 {
		body["history"] = history
	}
	var resp Detection
	err := c.do(ctx, http.MethodPost, "v0/detect", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
