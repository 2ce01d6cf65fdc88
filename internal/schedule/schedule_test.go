package schedule

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

type fakeOracle struct {
	tz       string
	tzErr    error
	events   []Event
	err      error
	tzCalls  atomic.Int32
	gotFrom  time.Time
	gotTo    time.Time
	blockCtx bool
}

func (f *fakeOracle) TimeZone(context.Context) (string, error) {
	f.tzCalls.Add(1)
	return f.tz, f.tzErr
}

func (f *fakeOracle) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	f.gotFrom, f.gotTo = from, to
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.events, f.err
}

var now = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func timed(summary string, start, end time.Time) Event {
	return Event{Summary: summary, Start: Boundary{DateTime: start}, End: Boundary{DateTime: end}}
}

func TestResolveOnCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []Event
		want   []string
	}{
		{
			name:   "no events",
			events: nil,
			want:   []string{},
		},
		{
			name: "single covering event",
			events: []Event{
				timed("Alice", now.Add(-time.Hour), now.Add(time.Hour)),
			},
			want: []string{"Alice"},
		},
		{
			name: "multiple names trimmed and deduped",
			events: []Event{
				timed(" Alice , Bob,, Alice ", now.Add(-time.Hour), now.Add(time.Hour)),
			},
			want: []string{"Alice", "Bob"},
		},
		{
			name: "future event does not cover now",
			events: []Event{
				timed("Carol", now.Add(time.Hour), now.Add(2*time.Hour)),
			},
			want: []string{},
		},
		{
			name: "earliest covering event wins",
			events: []Event{
				timed("Late", now.Add(-time.Minute), now.Add(time.Hour)),
				timed("Early", now.Add(-2*time.Hour), now.Add(time.Hour)),
			},
			want: []string{"Early"},
		},
		{
			name: "start boundary inclusive",
			events: []Event{
				timed("Edge", now, now.Add(time.Hour)),
			},
			want: []string{"Edge"},
		},
		{
			name: "end boundary inclusive",
			events: []Event{
				timed("Edge", now.Add(-time.Hour), now),
			},
			want: []string{"Edge"},
		},
		{
			name: "all-day event",
			events: []Event{
				{Summary: "Dana", Start: Boundary{Date: "2026-03-10"}, End: Boundary{Date: "2026-03-11"}},
			},
			want: []string{"Dana"},
		},
		{
			name: "bad boundary skipped",
			events: []Event{
				{Summary: "Broken", Start: Boundary{Date: "not-a-date"}, End: Boundary{Date: "2026-03-11"}},
				timed("Eve", now.Add(-time.Hour), now.Add(time.Hour)),
			},
			want: []string{"Eve"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := &fakeOracle{tz: "UTC", events: tt.events}
			r := NewResolver(o, 0, 0, nil)

			got, err := r.ResolveOnCall(context.Background(), now)
			if err != nil {
				t.Fatalf("ResolveOnCall: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveOnCall_AllDayUsesOracleZone(t *testing.T) {
	t.Parallel()

	// 2026-03-10 23:30 UTC is already 2026-03-11 in Auckland
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	o := &fakeOracle{tz: "Pacific/Auckland", events: []Event{
		{Summary: "Tues", Start: Boundary{Date: "2026-03-10"}, End: Boundary{Date: "2026-03-10"}},
		{Summary: "Wed", Start: Boundary{Date: "2026-03-11"}, End: Boundary{Date: "2026-03-12"}},
	}}
	r := NewResolver(o, 0, 0, nil)

	got, err := r.ResolveOnCall(context.Background(), at)
	if err != nil {
		t.Fatalf("ResolveOnCall: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Wed"}) {
		t.Errorf("got %q, want [Wed]", got)
	}
}

func TestResolveOnCall_QueryWindow(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{tz: "UTC"}
	r := NewResolver(o, 48*time.Hour, 0, nil)
	if _, err := r.ResolveOnCall(context.Background(), now); err != nil {
		t.Fatalf("ResolveOnCall: %v", err)
	}
	if !o.gotFrom.Equal(now) {
		t.Errorf("from = %v, want %v", o.gotFrom, now)
	}
	if !o.gotTo.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("to = %v, want %v", o.gotTo, now.Add(48*time.Hour))
	}
}

func TestResolveOnCall_OracleError(t *testing.T) {
	t.Parallel()

	boom := errors.New("calendar unavailable")
	r := NewResolver(&fakeOracle{tz: "UTC", err: boom}, 0, 0, nil)
	_, err := r.ResolveOnCall(context.Background(), now)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
}

func TestResolveOnCall_TimeZoneErrorNotCached(t *testing.T) {
	t.Parallel()

	o := &fakeOracle{tzErr: errors.New("forbidden")}
	r := NewResolver(o, 0, 0, nil)
	if _, err := r.ResolveOnCall(context.Background(), now); err == nil {
		t.Fatal("expected time zone error")
	}

	o.tzErr = nil
	o.tz = "Europe/Berlin"
	if _, err := r.ResolveOnCall(context.Background(), now); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if _, err := r.ResolveOnCall(context.Background(), now); err != nil {
		t.Fatalf("third lookup: %v", err)
	}
	if n := o.tzCalls.Load(); n != 2 {
		t.Errorf("TimeZone calls = %d, want 2 (cached after success)", n)
	}
}

func TestResolveOnCall_UnknownZone(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeOracle{tz: "Mars/Olympus_Mons"}, 0, 0, nil)
	if _, err := r.ResolveOnCall(context.Background(), now); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestResolveOnCall_Timeout(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeOracle{tz: "UTC", blockCtx: true}, 0, 20*time.Millisecond, nil)
	start := time.Now()
	_, err := r.ResolveOnCall(context.Background(), now)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("lookup was not bounded by the timeout")
	}
}

func TestNewResolver_NilOraclePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil oracle")
		}
	}()
	NewResolver(nil, 0, 0, nil)
}

func TestSplitNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"Alice", []string{"Alice"}},
		{"Alice,Bob", []string{"Alice", "Bob"}},
		{" Alice ,  Bob ", []string{"Alice", "Bob"}},
		{"Alice,,Bob,", []string{"Alice", "Bob"}},
		{"Bob,Alice,Bob", []string{"Bob", "Alice"}},
		{" , , ", []string{}},
	}
	for _, tt := range tests {
		if got := SplitNames(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitNames(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
