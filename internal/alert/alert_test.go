package alert

import (
	"errors"
	"strings"
	"testing"
)

func TestDecode_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantMonitor string
		wantTitle   string
		wantMessage string
	}{
		{"plain monitor string", `{"monitor":"db-primary","message":"DOWN"}`, "db-primary", "", "DOWN"},
		{"kuma object", `{"monitor":{"name":"api","id":4},"msg":"[api] [🔴 Down] timeout"}`, "api", "", "[api] [🔴 Down] timeout"},
		{"monitor_name field", `{"monitor_name":" cache ","title":"Cache","message":"x"}`, "cache", "Cache", "x"},
		{"message wins over msg", `{"monitor":"m","message":"a","msg":"b"}`, "m", "", "a"},
		{"null monitor falls back", `{"monitor":null,"monitor_name":"fallback"}`, "fallback", "", ""},
		{"empty monitor falls back", `{"monitor":"","monitor_name":"x"}`, "x", "", ""},
		{"blank monitor falls back", `{"monitor":"  ","monitor_name":"x"}`, "x", "", ""},
		{"blank object name falls back", `{"monitor":{"name":" "},"monitor_name":"x"}`, "x", "", ""},
		{"no monitor", `{"message":"hello"}`, "", "", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if p.Monitor != tt.wantMonitor {
				t.Errorf("Monitor = %q, want %q", p.Monitor, tt.wantMonitor)
			}
			if p.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", p.Title, tt.wantTitle)
			}
			if p.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", p.Message, tt.wantMessage)
			}
		})
	}
}

func TestDecode_CompactsRaw(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte("{\n  \"monitor\": \"db\",\n  \"message\": \"DOWN\"\n}"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, want := string(p.Raw), `{"monitor":"db","message":"DOWN"}`; got != want {
		t.Errorf("Raw = %s, want %s", got, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "{bad", "[1,2]", `"str"`} {
		if _, err := Decode([]byte(body)); err == nil {
			t.Errorf("Decode(%q) = nil error, want error", body)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (&Payload{Monitor: "db"}).Validate(); err != nil {
		t.Errorf("Validate with monitor: %v", err)
	}
	if err := (&Payload{}).Validate(); !errors.Is(err, ErrMissingMonitor) {
		t.Errorf("Validate without monitor = %v, want ErrMissingMonitor", err)
	}
	var nilPayload *Payload
	if err := nilPayload.Validate(); !errors.Is(err, ErrMissingMonitor) {
		t.Errorf("Validate on nil = %v, want ErrMissingMonitor", err)
	}
}

func TestDisplayTitle(t *testing.T) {
	t.Parallel()

	if got := (&Payload{Monitor: "db", Title: "Primary DB"}).DisplayTitle(); got != "Primary DB" {
		t.Errorf("DisplayTitle = %q, want %q", got, "Primary DB")
	}
	if got := (&Payload{Monitor: "db"}).DisplayTitle(); got != "db" {
		t.Errorf("DisplayTitle = %q, want %q", got, "db")
	}
}

func TestMarkerClassifier(t *testing.T) {
	t.Parallel()

	classify := MarkerClassifier("")

	tests := []struct {
		message string
		want    Kind
	}{
		{"DOWN", KindProblem},
		{"[Up] recovered", KindResolution},
		{"[db] [✅ Up] 200 - OK", KindResolution},
		{"[db] [🔴 Down] connection refused", KindProblem},
		{"up", KindProblem},
		{"", KindProblem},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			t.Parallel()
			if got := classify(&Payload{Monitor: "db", Message: tt.message}); got != tt.want {
				t.Errorf("classify(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestMarkerClassifier_CustomMarker(t *testing.T) {
	t.Parallel()

	classify := MarkerClassifier("RECOVERED")
	if got := classify(&Payload{Message: "[Up] back"}); got != KindProblem {
		t.Errorf("custom marker matched default marker: got %q", got)
	}
	if got := classify(&Payload{Message: "service RECOVERED"}); got != KindResolution {
		t.Errorf("custom marker not matched: got %q", got)
	}
	if got := classify(nil); got != KindProblem {
		t.Errorf("classify(nil) = %q, want %q", got, KindProblem)
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"monitor":"db-primary","message":"DOWN"}`))
	f.Add([]byte(`{"monitor":{"name":"x"},"msg":"[Up]"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte("\x00\x01\xff"))
	f.Add([]byte(strings.Repeat("[", 1000)))

	f.Fuzz(func(t *testing.T, body []byte) {
		p, err := Decode(body)
		if err != nil {
			return
		}
		// Must not panic and must keep a valid raw copy
		if len(p.Raw) == 0 {
			t.Fatal("decoded payload has empty Raw")
		}
		_ = p.Validate()
		_ = MarkerClassifier("")(p)
	})
}
