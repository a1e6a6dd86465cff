package callfleetsdk

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

// Client is a minimal callfleet HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Agent represents the API agent model (partial).
type Agent struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Role                 string   `json:"role"`
	Status               string   `json:"status"`
	AssignedPhoneNumbers []string `json:"assignedPhoneNumbers"`
}

// PhoneNumber is an owned number.
type PhoneNumber struct {
	ID          string  `json:"id"`
	Number      string  `json:"number"`
	AgentID     *string `json:"agentId"`
	Price       float64 `json:"price"`
	PurchasedAt string  `json:"purchasedAt"`
}

// Receipt is returned by Purchase.
type Receipt struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type PurchaseResult struct {
	Receipt Receipt       `json:"receipt"`
	Numbers []PhoneNumber `json:"numbers"`
}

type Assignment struct {
	NumberID string   `json:"number_id"`
	Number   string   `json:"number"`
	AgentID  string   `json:"agent_id"`
	Applied  bool     `json:"applied"`
	Revoked  []string `json:"revoked"`
}

// Dashboard mirrors GET /v1/dashboard.
type Dashboard struct {
	Summary struct {
		TotalAgents      int    `json:"totalAgents"`
		ActiveAgents     int    `json:"activeAgents"`
		TotalCalls       int    `json:"totalCalls"`
		AverageDuration  string `json:"averageDuration"`
		SuccessRate      int    `json:"successRate"`
		ConversionRate   int    `json:"conversionRate"`
		AvailableCredits int    `json:"availableCredits"`
	} `json:"summary"`
	Notifications int `json:"notifications"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// ListAgents returns every agent.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Items []Agent `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "agents", nil, &resp)
	return resp.Items, err
}

// GetAgent fetches one agent.
func (c *Client) GetAgent(ctx context.Context, id string) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodGet, "agents/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateAgent registers an agent; countryCode is an ISO code such as "US".
func (c *Client) CreateAgent(ctx context.Context, name, role, countryCode string) (Agent, error) {
	body := map[string]any{
		"name":    name,
		"role":    role,
		"country": map[string]string{"code": countryCode},
	}
	var resp Agent
	err := c.do(ctx, http.MethodPost, "agents", body, &resp)
	return resp, err
}

// Numbers lists owned numbers.
func (c *Client) Numbers(ctx context.Context) ([]PhoneNumber, error) {
	var resp struct {
		Items []PhoneNumber `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "numbers", nil, &resp)
	return resp.Items, err
}

// Purchase buys catalog numbers.
func (c *Client) Purchase(ctx context.Context, numbers ...string) (PurchaseResult, error) {
	var resp PurchaseResult
	err := c.do(ctx, http.MethodPost, "numbers/purchase", map[string]any{"numbers": numbers}, &resp)
	return resp, err
}

// Assign points a number at an agent.
func (c *Client) Assign(ctx context.Context, numberID, agentID string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("numbers/%s/assign", url.PathEscape(numberID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"agent_id": agentID}, &resp)
	return resp, err
}

// Dashboard returns the fleet summary.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
