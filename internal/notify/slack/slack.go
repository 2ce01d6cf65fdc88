// Package slack broadcasts alert notifications to Slack via incoming webhooks.
// The target address is the webhook URL.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// ChannelName is the name targets use to select this channel.
	ChannelName = "slack"

	maxHeaderLen = 150
	maxTextLen   = 3000
	httpTimeout  = 10 * time.Second
)

// Notifier posts messages to Slack incoming webhooks.
type Notifier struct {
	client *http.Client
	now    func() time.Time
}

// New creates a new Slack notifier. A nil client gets a traced default.
func New(client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Notifier{client: client, now: time.Now}
}

// Name implements notify.Channel.
func (n *Notifier) Name() string { return ChannelName }

// Send posts message to the webhook URL in address.
func (n *Notifier) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return errors.New("slack: empty webhook url")
	}

	body, err := json.Marshal(buildMessage(message, n.now()))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhook URL is from trusted config, not user input
	if err != nil {
		// the URL is the webhook secret, keep it out of the error
		return fmt.Errorf("slack: post webhook: %w", unwrapURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// buildMessage renders a plain notification as Block Kit. The first line
// that carries the [ALERT] or [RESOLVED] tag becomes the header.
func buildMessage(message string, at time.Time) map[string]any {
	return map[string]any{
		"text": truncate(message, maxTextLen),
		"blocks": []map[string]any{
			headerBlock(message),
			bodyBlock(message),
			contextBlock(at),
		},
	}
}

func headerBlock(message string) map[string]any {
	text := fmt.Sprintf("%s %s", kindEmoji(message), truncate(headline(message), maxHeaderLen-5))
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func bodyBlock(message string) map[string]any {
	text := truncate(escape(message), maxTextLen)
	if text == "" {
		text = "_empty message_"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(at time.Time) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("beacon • %s", at.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func headline(message string) string {
	for line := range strings.SplitSeq(message, "\n") {
		if strings.HasPrefix(line, "[ALERT]") || strings.HasPrefix(line, "[RESOLVED]") {
			return line
		}
	}
	first, _, _ := strings.Cut(message, "\n")
	return first
}

func kindEmoji(message string) string {
	switch {
	case strings.Contains(message, "[RESOLVED]"):
		return "\U0001f7e2" // green circle
	case strings.Contains(message, "[ALERT]"):
		return "\U0001f534" // red circle
	default:
		return "\U0001f7e1" // yellow circle
	}
}

// escape applies Slack's mrkdwn control character escaping.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// back off to a rune boundary
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func unwrapURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
