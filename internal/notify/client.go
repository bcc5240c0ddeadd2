package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Event is the payload posted to the front-office webhook for each pass
// transition.
type Event struct {
	EntryID     string    `json:"entry_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Type        string    `json:"type"`
	Destination string    `json:"destination,omitempty"`
	Override    bool      `json:"override,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Client posts pass events to an optional front-office endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, every call is a no-op so the worker
// runs fine without a webhook configured.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one event.
func (c *Client) Send(ctx context.Context, evt Event) error {
	if c.Skip {
		return nil
	}

	body, _ := json.Marshal(evt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health checks if the webhook endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify endpoint unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint unhealthy: %s", resp.Status)
	}
	return nil
}
