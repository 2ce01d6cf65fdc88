// Package storetest is a conformance suite shared by every incident.Store backend.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/beacon/internal/alert"
	"github.com/linnemanlabs/beacon/internal/incident"
)

// Factory returns a store for one subtest. Backends that need cleanup register
// it on t.
type Factory func(t *testing.T) incident.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the Store contract against stores produced by newStore.
// Every monitor name is prefixed with prefix so runs against a shared
// database do not collide.
func Run(t *testing.T, prefix string, newStore Factory) {
	t.Helper()

	t.Run("ProblemCreatesIncident", func(t *testing.T) { testProblemCreates(t, prefix, newStore) })
	t.Run("ResolveWithoutFiringIsNoOp", func(t *testing.T) { testResolveNoOp(t, prefix, newStore) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, prefix, newStore) })
	t.Run("ConcurrentProblemsOneIncident", func(t *testing.T) { testConcurrent(t, prefix, newStore) })
	t.Run("IDsMonotonic", func(t *testing.T) { testMonotonicIDs(t, prefix, newStore) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore) })
}

func apply(t *testing.T, s incident.Store, monitor string, kind alert.Kind, now time.Time) (*incident.Incident, incident.Decision) {
	t.Helper()
	saved, decision, err := tryApply(s, monitor, kind, now)
	if err != nil {
		t.Fatalf("Apply(%s): %v", monitor, err)
	}
	return saved, decision
}

func tryApply(s incident.Store, monitor string, kind alert.Kind, now time.Time) (*incident.Incident, incident.Decision, error) {
	var decision incident.Decision
	saved, err := s.Apply(context.Background(), monitor, func(firing *incident.Incident) *incident.Incident {
		next, d := incident.Transition(firing, incident.Signal{
			Kind:    kind,
			Monitor: monitor,
			Payload: json.RawMessage(fmt.Sprintf(`{"monitor":%q,"kind":%q}`, monitor, kind)),
			Now:     now,
		}, incident.DefaultRenotifyInterval)
		decision = d
		return next
	})
	return saved, decision, err
}

func countFiring(t *testing.T, s incident.Store, monitor string) int {
	t.Helper()
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	n := 0
	for _, in := range list {
		if in.MonitorName == monitor && in.Status == incident.StatusFiring {
			n++
		}
	}
	return n
}

func testProblemCreates(t *testing.T, prefix string, newStore Factory) {
	s := newStore(t)
	monitor := prefix + "create"

	saved, d := apply(t, s, monitor, alert.KindProblem, base)
	if d != incident.DecisionNotify {
		t.Fatalf("decision = %q, want %q", d, incident.DecisionNotify)
	}
	if saved == nil || saved.ID == 0 {
		t.Fatalf("saved = %+v, want assigned ID", saved)
	}
	if saved.FirstOccurrenceTS != base.Unix() {
		t.Errorf("FirstOccurrenceTS = %d, want %d", saved.FirstOccurrenceTS, base.Unix())
	}

	got, ok, err := s.Get(context.Background(), saved.ID)
	if err != nil || !ok {
		t.Fatalf("Get(%d) ok=%v err=%v", saved.ID, ok, err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Errorf("Get = %+v, want %+v", got, saved)
	}
}

func testResolveNoOp(t *testing.T, prefix string, newStore Factory) {
	s := newStore(t)
	monitor := prefix + "noop"

	before, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	saved, d := apply(t, s, monitor, alert.KindResolution, base)
	if d != incident.DecisionNoOp {
		t.Errorf("decision = %q, want %q", d, incident.DecisionNoOp)
	}
	if saved != nil {
		t.Errorf("saved = %+v, want nil", saved)
	}

	after, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("list changed on no-op resolution:\nbefore %+v\nafter  %+v", before, after)
	}
}

func testLifecycle(t *testing.T, prefix string, newStore Factory) {
	s := newStore(t)
	monitor := prefix + "db-primary"

	first, d := apply(t, s, monitor, alert.KindProblem, base)
	if d != incident.DecisionNotify {
		t.Fatalf("first decision = %q", d)
	}

	second, d := apply(t, s, monitor, alert.KindProblem, base.Add(time.Hour))
	if d != incident.DecisionNoOp {
		t.Errorf("second decision = %q, want %q", d, incident.DecisionNoOp)
	}
	if second.ID != first.ID {
		t.Errorf("second ID = %d, want %d (no duplicate incident)", second.ID, first.ID)
	}
	if len(second.Alerts) != 2 {
		t.Errorf("alerts = %d, want 2", len(second.Alerts))
	}
	if second.LastNotificationSentTS != first.LastNotificationSentTS {
		t.Errorf("LastNotificationSentTS moved within interval")
	}
	if n := countFiring(t, s, monitor); n != 1 {
		t.Errorf("firing incidents = %d, want 1", n)
	}

	resolved, d := apply(t, s, monitor, alert.KindResolution, base.Add(2*time.Hour))
	if d != incident.DecisionNotifyResolution {
		t.Errorf("resolve decision = %q", d)
	}
	if resolved.Status != incident.StatusResolved {
		t.Errorf("status = %q, want resolved", resolved.Status)
	}
	if n := countFiring(t, s, monitor); n != 0 {
		t.Errorf("firing incidents after resolve = %d, want 0", n)
	}

	// a new problem after resolution opens a fresh incident
	fresh, d := apply(t, s, monitor, alert.KindProblem, base.Add(3*time.Hour))
	if d != incident.DecisionNotify {
		t.Errorf("fresh decision = %q", d)
	}
	if fresh.ID == first.ID {
		t.Errorf("fresh incident reused ID %d", fresh.ID)
	}

	got, ok, err := s.Get(context.Background(), first.ID)
	if err != nil || !ok {
		t.Fatalf("Get(%d): ok=%v err=%v", first.ID, ok, err)
	}
	if got.Status != incident.StatusResolved || len(got.Alerts) != 3 {
		t.Errorf("resolved incident = %+v", got)
	}
	for i := 1; i < len(got.Alerts); i++ {
		if got.Alerts[i].TS < got.Alerts[i-1].TS {
			t.Errorf("alert history reordered: %+v", got.Alerts)
		}
	}
}

func testConcurrent(t *testing.T, prefix string, newStore Factory) {
	s := newStore(t)
	monitor := prefix + "race"
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	notified := 0
	for i := range n {
		wg.Go(func() {
			_, d, err := tryApply(s, monitor, alert.KindProblem, base.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Errorf("Apply: %v", err)
				return
			}
			if d == incident.DecisionNotify {
				mu.Lock()
				notified++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if notified != 1 {
		t.Errorf("notify decisions = %d, want 1", notified)
	}
	if c := countFiring(t, s, monitor); c != 1 {
		t.Errorf("firing incidents = %d, want 1", c)
	}

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, in := range list {
		if in.MonitorName == monitor && len(in.Alerts) != n {
			t.Errorf("alerts = %d, want %d", len(in.Alerts), n)
		}
	}
}

func testMonotonicIDs(t *testing.T, prefix string, newStore Factory) {
	s := newStore(t)

	var last int64
	for i := range 5 {
		saved, _ := apply(t, s, fmt.Sprintf("%sid-%d", prefix, i), alert.KindProblem, base)
		if saved.ID <= last {
			t.Errorf("ID %d not greater than previous %d", saved.ID, last)
		}
		last = saved.ID
	}
}

func testGetMissing(t *testing.T, newStore Factory) {
	s := newStore(t)
	_, ok, err := s.Get(context.Background(), 1<<40)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing ID")
	}
}
