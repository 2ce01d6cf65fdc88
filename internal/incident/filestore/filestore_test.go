package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/beacon/internal/alert"
	"github.com/linnemanlabs/beacon/internal/incident"
	"github.com/linnemanlabs/beacon/internal/incident/storetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "incidents.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	storetest.Run(t, "", func(t *testing.T) incident.Store { return newStore(t) })
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("List should not create the file, stat err = %v", err)
	}
}

func TestStore_EmptyFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if err := os.WriteFile(s.Path(), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
}

func TestStore_CorruptFile(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := s.Apply(context.Background(), "db", func(*incident.Incident) *incident.Incident {
		t.Error("fn must not run when the file cannot be read")
		return nil
	})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "decode incidents") {
		t.Errorf("err = %v", err)
	}
}

func TestStore_FileFormat(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	payload := json.RawMessage(`{"monitor":{"name":"db"},"msg":"DOWN"}`)
	_, err := s.Apply(context.Background(), "db", func(*incident.Incident) *incident.Incident {
		return &incident.Incident{
			Status:                 incident.StatusFiring,
			FirstOccurrenceTS:      100,
			LastNotificationSentTS: 100,
			Alerts:                 []incident.Record{{TS: 100, Payload: payload}},
		}
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not a JSON array: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("len = %d, want 1", len(raw))
	}
	for _, key := range []string{"id", "monitor_name", "status", "firstOccurrenceTS", "lastNotificationSentTS", "alerts"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if _, ok := raw[0]["resolvedTS"]; ok {
		t.Error("resolvedTS should be omitted while firing")
	}
	if !strings.Contains(string(data), string(payload)) {
		t.Errorf("raw payload not preserved verbatim:\n%s", data)
	}
}

func TestStore_NoChangeLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, _ = s.Apply(context.Background(), "db", func(*incident.Incident) *incident.Incident { return nil })
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("no-op Apply wrote the file, stat err = %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	base := time.Unix(1_700_000_000, 0)
	signals := []incident.Signal{
		{Kind: alert.KindProblem, Monitor: "db", Payload: json.RawMessage(`{"msg":"DOWN"}`), Now: base},
		{Kind: alert.KindProblem, Monitor: "db", Payload: json.RawMessage(`{"msg":"still DOWN"}`), Now: base.Add(time.Minute)},
		{Kind: alert.KindResolution, Monitor: "db", Payload: json.RawMessage(`{"msg":"[Up] ok"}`), Now: base.Add(2 * time.Minute)},
		{Kind: alert.KindProblem, Monitor: "api", Payload: json.RawMessage(`{"monitor":{"name":"api"}}`), Now: base.Add(3 * time.Minute)},
	}
	for _, sig := range signals {
		_, err := s.Apply(ctx, sig.Monitor, func(firing *incident.Incident) *incident.Incident {
			next, _ := incident.Transition(firing, sig, time.Hour)
			return next
		})
		if err != nil {
			t.Fatalf("Apply(%s): %v", sig.Monitor, err)
		}
	}

	want, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(want) != 2 {
		t.Fatalf("len = %d, want 2", len(want))
	}
	var resolved *incident.Incident
	for i := range want {
		if want[i].MonitorName == "db" {
			resolved = &want[i]
		}
	}
	if resolved == nil || resolved.Status != incident.StatusResolved || resolved.ResolvedTS == nil || len(resolved.Alerts) != 3 {
		t.Fatalf("db incident = %+v, want resolved with 3 alerts", resolved)
	}

	reopened, err := New(s.Path())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List after reopen: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after reopen:\n got %+v\nwant %+v", got, want)
	}

	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
