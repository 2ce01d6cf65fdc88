// Package telegram delivers chat messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// ChannelName is the name targets use to select this channel.
	ChannelName = "telegram"

	// DefaultBaseURL is the Bot API root.
	DefaultBaseURL = "https://api.telegram.org"

	// maxMessageLen is the Bot API limit on text length in characters.
	maxMessageLen = 4096

	httpTimeout = 30 * time.Second
)

// Client posts messages as a bot to chat ids (users or groups).
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Bot API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// New creates a Client for the bot token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
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

type sendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts message to the chat id in address.
func (c *Client) Send(ctx context.Context, address, message string) error {
	if c.token == "" {
		return errors.New("telegram: no bot token configured")
	}

	body, err := json.Marshal(sendMessage{ChatID: address, Text: truncate(message, maxMessageLen)})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	endpoint := c.baseURL + "/bot" + c.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // base URL is from trusted config
	if err != nil {
		return fmt.Errorf("telegram: post message: %w", redact(err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var ar apiResponse
	decodeErr := json.Unmarshal(respBody, &ar)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && ar.Description != "" {
			return fmt.Errorf("telegram: api returned %d: %s", resp.StatusCode, ar.Description)
		}
		return fmt.Errorf("telegram: api returned %d", resp.StatusCode)
	}
	if decodeErr == nil && !ar.OK {
		return fmt.Errorf("telegram: api not ok: %s", ar.Description)
	}
	return nil
}

// redact drops the request URL from transport errors since it embeds the bot token.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
