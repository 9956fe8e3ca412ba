package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is the page-side consumer of the registry API. Used by the
// notification gateway to keep this installation's subscription current.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for the registry at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

// Subscribe upserts this installation's subscription
func (c *Client) Subscribe(subscriptionJSON, timezone, hhmm string) error {
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"subscription": json.RawMessage(subscriptionJSON),
			"timezone":     timezone,
			"hhmm":         hhmm,
		}).
		Post("/api/subscribe")
	if err != nil {
		return fmt.Errorf("registry client: subscribe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry client: subscribe: %s", resp.Status())
	}
	return nil
}

// UpdateSettings pushes a timezone or preferred-time change
func (c *Client) UpdateSettings(endpoint, timezone, hhmm string) error {
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"endpoint": endpoint,
			"timezone": timezone,
			"hhmm":     hhmm,
		}).
		Put("/api/update-settings")
	if err != nil {
		return fmt.Errorf("registry client: update settings: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry client: update settings: %s", resp.Status())
	}
	return nil
}

// Unsubscribe removes this installation's subscription
func (c *Client) Unsubscribe(endpoint string) error {
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"endpoint": endpoint}).
		Post("/api/unsubscribe")
	if err != nil {
		return fmt.Errorf("registry client: unsubscribe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("registry client: unsubscribe: %s", resp.Status())
	}
	return nil
}
