package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSend_PostsJSON(t *testing.T) {
	t.Parallel()

	var got sendMessage
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	c := New("123:abc", WithBaseURL(srv.URL))
	if err := c.Send(context.Background(), "-100200", "[RESOLVED] db - Up"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if got.ChatID != "-100200" || got.Text != "[RESOLVED] db - Up" {
		t.Errorf("body = %+v", got)
	}
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := New("t", WithBaseURL(srv.URL)).Send(context.Background(), "1", "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v, want chat not found", err)
	}
}

func TestSend_NotOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"flood control"}`))
	}))
	defer srv.Close()

	if err := New("t", WithBaseURL(srv.URL)).Send(context.Background(), "1", "hi"); err == nil {
		t.Fatal("expected error for ok=false")
	}
}

func TestSend_ErrorDoesNotLeakToken(t *testing.T) {
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

	err := New("secret-token", WithBaseURL(srv.URL)).Send(ctx, "1", "hi")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestSend_NoToken(t *testing.T) {
	t.Parallel()

	if err := New("").Send(context.Background(), "1", "hi"); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	got := truncate(strings.Repeat("x", 5000), maxMessageLen)
	if len(got) != maxMessageLen || !strings.HasSuffix(got, "...") {
		t.Errorf("len = %d", len(got))
	}
}
