package linewatchsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Linewatch status API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// LineStatus is the monitored line's current state.
type LineStatus struct {
	Line        string  `json:"line"`
	Name        string  `json:"name"`
	StatusURL   string  `json:"status_url,omitempty"`
	UpdatedAt   *string `json:"updated_at,omitempty"`
	ActiveCount int     `json:"active_count"`
	LastCheck   *Check  `json:"last_check,omitempty"`
}

// Disruption is one currently reported irregularity.
type Disruption struct {
	ID       string  `json:"id"`
	Header   string  `json:"header"`
	Details  string  `json:"details,omitempty"`
	Severity int     `json:"severity,omitempty"`
	Cause    int     `json:"cause,omitempty"`
	Effect   int     `json:"effect,omitempty"`
	Starts   *string `json:"starts,omitempty"`
	Ends     *string `json:"ends,omitempty"`
}

// Check is one recorded poll cycle.
type Check struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Line          string `json:"line"`
	Transition    string `json:"transition"`
	RecordCount   int    `json:"record_count"`
	NewCount      int    `json:"new_count"`
	ResolvedCount int    `json:"resolved_count"`
	Error         string `json:"error,omitempty"`
}

// Notification is one recorded dispatch.
type Notification struct {
	ID         string   `json:"id"`
	TS         string   `json:"ts"`
	Line       string   `json:"line"`
	Transition string   `json:"transition"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Channels   []string `json:"channels"`
	Failures   []string `json:"failures,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Status returns the monitored line's current state.
func (c *Client) Status(ctx context.Context) (LineStatus, error) {
	var resp LineStatus
	err := c.get(ctx, "v0/status", &resp)
	return resp, err
}

// Disruptions returns the currently reported disruptions.
func (c *Client) Disruptions(ctx context.Context) ([]Disruption, error) {
	var resp []Disruption
	err := c.get(ctx, "v0/disruptions", &resp)
	return resp, err
}

// Checks returns the most recent poll cycles, newest first.
func (c *Client) Checks(ctx context.Context, limit int) ([]Check, error) {
	var resp []Check
	err := c.get(ctx, listPath("v0/checks", limit), &resp)
	return resp, err
}

// Notifications returns the most recent dispatched notifications, newest
// first.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	var resp []Notification
	err := c.get(ctx, listPath("v0/notifications", limit), &resp)
	return resp, err
}

// Health reports whether the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "v0/health", nil)
}

func listPath(endpoint string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	return endpoint
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
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
