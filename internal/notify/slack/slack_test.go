package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.Client())
	n.now = func() time.Time { return time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC) }

	if err := n.Send(context.Background(), srv.URL, "On-call: Alice, Bob\n[ALERT] Primary DB - connection refused"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}
	// header, body, context
	if len(blocks) != 3 {
		t.Errorf("blocks count = %d, want 3", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "[ALERT] Primary DB") {
		t.Errorf("header text = %q, want the alert line", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for an alert")
	}

	ctxText := blocks[2].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(ctxText, "2026-02-26 14:23 UTC") {
		t.Errorf("context text = %q", ctxText)
	}

	if got["text"] != "On-call: Alice, Bob\n[ALERT] Primary DB - connection refused" {
		t.Errorf("fallback text = %v", got["text"])
	}
}

func TestSend_EmptyURL(t *testing.T) {
	t.Parallel()

	if err := New(nil).Send(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty webhook url")
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	err := New(srv.Client()).Send(context.Background(), srv.URL, "[RESOLVED] db - Up")
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func TestSend_ErrorHidesWebhookURL(t *testing.T) {
	t.Parallel()

	// the handler blocks until the test returns; closing done first lets srv.Close finish
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	hook := srv.URL + "/services/T000/B000/secret"
	err := New(srv.Client()).Send(ctx, hook, "hi")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks webhook url: %v", err)
	}
}

func TestKindEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"alert", "On-call: A\n[ALERT] x - y", "\U0001f534"},
		{"resolved", "[RESOLVED] x - y", "\U0001f7e2"},
		{"other", "hello", "\U0001f7e1"},
		{"empty", "", "\U0001f7e1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := kindEmoji(tt.message); got != tt.want {
				t.Errorf("kindEmoji(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestHeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"On-call: Alice\n[ALERT] db - down", "[ALERT] db - down"},
		{"[RESOLVED] db - Up", "[RESOLVED] db - Up"},
		{"first\nsecond", "first"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := headline(tt.in); got != tt.want {
			t.Errorf("headline(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscape(t *testing.T) {
	t.Parallel()

	if got := escape("a < b && c > d"); got != "a &lt; b &amp;&amp; c &gt; d" {
		t.Errorf("escape = %q", got)
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("On-call: Alice\n[ALERT] HighCPU - CPU is very high on node-1.")
	f.Add("")
	f.Add("[RESOLVED] <@U123> mention - *bold* _italic_ ~strike~")
	f.Add("alert\x00\x01\x02\nline\ttab")
	f.Add(strings.Repeat("ü", 5000))
	f.Add("```code block``` and <http://example.com|link>")

	f.Fuzz(func(t *testing.T, message string) {
		// Must not panic
		msg := buildMessage(message, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}

		blocks, ok := decoded["blocks"].([]any)
		if !ok || len(blocks) != 3 {
			t.Fatalf("blocks = %v", decoded["blocks"])
		}

		header := blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
		if utf8.ValidString(message) && !utf8.ValidString(header) {
			t.Errorf("header split a rune: %q", header)
		}
	})
}
