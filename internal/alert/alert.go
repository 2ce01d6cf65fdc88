// Package alert decodes inbound monitor webhooks and classifies them as
// problem or resolution signals.
package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingMonitor is returned when a payload carries no monitor identity.
var ErrMissingMonitor = errors.New("monitor name is required")

// Payload is a single inbound alert as sent by an uptime monitor.
type Payload struct {
	Monitor string
	Title   string
	Message string

	// Raw is the compacted request body, kept verbatim in incident history.
	Raw json.RawMessage
}

// wire accepts the handful of shapes monitors send: a plain "monitor" string,
// an uptime-kuma style {"monitor":{"name":...},"msg":...} body, or
// "monitor_name".
type wire struct {
	Monitor     json.RawMessage `json:"monitor"`
	MonitorName string          `json:"monitor_name"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Msg         string          `json:"msg"`
}

// Decode parses a webhook body. It only fails on malformed JSON; a missing
// monitor is reported later by Validate so callers can tell the two apart.
func Decode(body []byte) (*Payload, error) {
	var w wire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("compact alert: %w", err)
	}

	p := &Payload{
		Monitor: monitorName(w),
		Title:   strings.TrimSpace(w.Title),
		Message: w.Message,
		Raw:     json.RawMessage(compact.Bytes()),
	}
	if p.Message == "" {
		p.Message = w.Msg
	}
	return p, nil
}

func monitorName(w wire) string {
	if len(w.Monitor) > 0 && string(w.Monitor) != "null" {
		// blank values fall through to monitor_name
		var s string
		if err := json.Unmarshal(w.Monitor, &s); err == nil {
			if name := strings.TrimSpace(s); name != "" {
				return name
			}
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(w.Monitor, &obj); err == nil {
			if name := strings.TrimSpace(obj.Name); name != "" {
				return name
			}
		}
	}
	return strings.TrimSpace(w.MonitorName)
}

// Validate reports whether the payload identifies a monitor.
func (p *Payload) Validate() error {
	if p == nil || p.Monitor == "" {
		return ErrMissingMonitor
	}
	return nil
}

// DisplayTitle is the title used in notifications, falling back to the monitor name.
func (p *Payload) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Monitor
}
