// Package pushover delivers emergency-priority push notifications through
// the Pushover messages API.
package pushover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// ChannelName is the name targets use to select this channel.
	ChannelName = "pushover"

	// DefaultEndpoint is the Pushover messages API.
	DefaultEndpoint = "https://api.pushover.net/1/messages.json"

	// PriorityEmergency repeats the notification until acknowledged.
	PriorityEmergency = 2

	// maxMessageLen is the API's limit on message length in characters.
	maxMessageLen = 1024

	httpTimeout = 30 * time.Second
)

// Client sends messages to Pushover user keys.
type Client struct {
	token    string
	endpoint string
	retry    time.Duration
	expire   time.Duration
	client   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API URL.
func WithEndpoint(u string) Option { return func(c *Client) { c.endpoint = u } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// WithRetry sets how often an unacknowledged emergency notification repeats
// and when it stops. Pushover requires retry >= 30s and expire <= 3h.
func WithRetry(retry, expire time.Duration) Option {
	return func(c *Client) {
		c.retry = retry
		c.expire = expire
	}
}

// New creates a Client authenticated with the application token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:    token,
		endpoint: DefaultEndpoint,
		retry:    60 * time.Second,
		expire:   time.Hour,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements notify.Channel.
func (c *Client) Name() string { return ChannelName }

type apiResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

// Send posts message to the Pushover user key in address.
func (c *Client) Send(ctx context.Context, address, message string) error {
	if c.token == "" {
		return errors.New("pushover: no application token configured")
	}

	form := url.Values{
		"token":    {c.token},
		"user":     {address},
		"message":  {truncate(message, maxMessageLen)},
		"priority": {strconv.Itoa(PriorityEmergency)},
		"retry":    {strconv.Itoa(int(c.retry.Seconds()))},
		"expire":   {strconv.Itoa(int(c.expire.Seconds()))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req) //nolint:gosec // endpoint is from trusted config
	if err != nil {
		return fmt.Errorf("pushover: post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ar apiResponse
		if json.Unmarshal(body, &ar) == nil && len(ar.Errors) > 0 {
			return fmt.Errorf("pushover: api returned %d: %s", resp.StatusCode, strings.Join(ar.Errors, "; "))
		}
		return fmt.Errorf("pushover: api returned %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err == nil && ar.Status != 1 {
		return fmt.Errorf("pushover: api status %d: %s", ar.Status, strings.Join(ar.Errors, "; "))
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
