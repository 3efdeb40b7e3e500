// Package sdk provides a Go client for the scope governance API.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:8090", sdk.Identity{UserID: "alice", Role: "user"})
//	res, err := c.Govern(ctx, "transfer 50 to my savings account")
//
// The client carries the caller's identity on every request; the server
// decides per role what each call may see or do.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Identity is the principal the client acts as. Authentication happens in
// the deployment layer in front of the API; the identity headers carry the
// already-authenticated result.
type Identity struct {
	UserID string
	Role   string
	Name   string
}

// GovernResult is returned by POST /v1/request.
type GovernResult struct {
	Action        string   `json:"action"` // approve, rewrite, reject, escalate
	Reasoning     string   `json:"reasoning"`
	ProcessedText string   `json:"processed_text,omitempty"`
	TicketID      string   `json:"ticket_id,omitempty"`
	Reply         string   `json:"reply"`
	Analysis      Analysis `json:"analysis"`
}

// Analysis carries the risk scores behind a decision.
type Analysis struct {
	SafetyScore     float64  `json:"safety_score"`
	ComplianceScore float64  `json:"compliance_score"`
	Confidence      float64  `json:"confidence"`
	ViolatedRules   []string `json:"violated_rules,omitempty"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
}

// Ticket is one escalation ticket as the API returns it.
type Ticket struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	InputText      string  `json:"input_text"`
	AgentReasoning string  `json:"agent_reasoning"`
	Confidence     float64 `json:"confidence"`
	Status         string  `json:"status"`
	ResolvedBy     string  `json:"resolved_by,omitempty"`
	ResolutionNote string  `json:"resolution_note,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ResolvedAt     string  `json:"resolved_at,omitempty"`
}

// QueueStats summarizes the tickets visible to the caller.
type QueueStats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Resolved      int     `json:"resolved"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// AuditEvent is one audit trail record.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id"`
	Action    string            `json:"action"`
	Success   bool              `json:"success"`
	Details   map[string]string `json:"details,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// LogQuery filters an audit trail listing. Zero values mean no filter.
type LogQuery struct {
	EventType string
	UserID    string
	Since     string // RFC3339
	Limit     int
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scope: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client calls the scope governance API.
type Client struct {
	baseURL    string
	identity   Identity
	httpClient *http.Client
}

// NewClient creates a client acting as the given identity.
func NewClient(baseURL string, identity Identity) *Client {
	return &Client{
		baseURL:    baseURL,
		identity:   identity,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Govern runs one request through the governance pipeline.
func (c *Client) Govern(ctx context.Context, text string) (*GovernResult, error) {
	var out GovernResult
	if err := c.do(ctx, http.MethodPost, "/v1/request", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Escalations lists tickets visible to the client identity, optionally
// filtered by status.
func (c *Client) Escalations(ctx context.Context, status string) ([]Ticket, error) {
	path := "/v1/escalations"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Tickets []Ticket `json:"tickets"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tickets, nil
}

// Resolve marks a pending ticket resolved. Returns false when the ticket
// had already left the pending state.
func (c *Client) Resolve(ctx context.Context, ticketID, note string) (bool, error) {
	var out struct {
		Resolved bool `json:"resolved"`
	}
	path := "/v1/escalations/" + url.PathEscape(ticketID) + "/resolve"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"note": note}, &out); err != nil {
		return false, err
	}
	return out.Resolved, nil
}

// Stats summarizes the tickets visible to the client identity.
func (c *Client) Stats(ctx context.Context) (*QueueStats, error) {
	var out QueueStats
	if err := c.do(ctx, http.MethodGet, "/v1/escalations/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs queries the audit trail. Needs the view-logs permission.
func (c *Client) Logs(ctx context.Context, q LogQuery) ([]AuditEvent, error) {
	params := url.Values{}
	if q.EventType != "" {
		params.Set("type", q.EventType)
	}
	if q.UserID != "" {
		params.Set("user", q.UserID)
	}
	if q.Since != "" {
		params.Set("since", q.Since)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/v1/logs"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out struct {
		Events []AuditEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Tools lists the tool names the client identity's role may call.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	var out struct {
		Tools []string `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Health checks the API health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("scope: unhealthy status %q", out.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scope-User", c.identity.UserID)
	req.Header.Set("X-Scope-Role", c.identity.Role)
	if c.identity.Name != "" {
		req.Header.Set("X-Scope-Name", c.identity.Name)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
