// Package schedule resolves who is on call right now from a rotation oracle.
//
// The oracle is a calendar-like source: each event spans an interval and its
// summary names the people on call for that interval, comma separated.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/beacon/internal/schedule")

const (
	// DefaultWindow is how far ahead of now the oracle is queried.
	DefaultWindow = 7 * 24 * time.Hour

	// DefaultTimeout bounds one on-call lookup.
	DefaultTimeout = 10 * time.Second
)

// Boundary is an event start or end. Timed events set DateTime; all-day
// events set Date as YYYY-MM-DD in the oracle's time zone.
type Boundary struct {
	DateTime time.Time
	Date     string
}

// At returns the boundary as an instant. Dates resolve to midnight in loc.
func (b Boundary) At(loc *time.Location) (time.Time, error) {
	if !b.DateTime.IsZero() {
		return b.DateTime, nil
	}
	if b.Date == "" {
		return time.Time{}, errors.New("empty boundary")
	}
	t, err := time.ParseInLocation(time.DateOnly, b.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", b.Date, err)
	}
	return t, nil
}

// Event is one scheduled rotation slot.
type Event struct {
	Summary string
	Start   Boundary
	End     Boundary
}

// Oracle is the external rotation source.
type Oracle interface {
	// TimeZone returns the IANA zone the schedule is declared in.
	TimeZone(ctx context.Context) (string, error)
	// Events returns events overlapping [from, to).
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Resolver answers "who is on call at t" against an Oracle.
type Resolver struct {
	oracle  Oracle
	window  time.Duration
	timeout time.Duration
	logger  log.Logger

	locMu sync.Mutex
	loc   *time.Location
}

// NewResolver creates a Resolver. Non-positive window or timeout fall back to
// DefaultWindow and DefaultTimeout.
func NewResolver(oracle Oracle, window, timeout time.Duration, logger log.Logger) *Resolver {
	if oracle == nil {
		panic(xerrors.New("schedule oracle is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{oracle: oracle, window: window, timeout: timeout, logger: logger}
}

// ResolveOnCall returns the ordered, de-duplicated names on call at now. It
// returns an empty list and nil error when no event covers now.
func (r *Resolver) ResolveOnCall(ctx context.Context, now time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "schedule.ResolveOnCall")
	defer span.End()

	loc, err := r.location(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	now = now.In(loc)

	events, err := r.oracle.Events(ctx, now, now.Add(r.window))
	if err != nil {
		err = fmt.Errorf("list events: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("schedule.events", len(events)))

	ev, ok := r.covering(ctx, events, now, loc)
	if !ok {
		return []string{}, nil
	}

	names := SplitNames(ev.Summary)
	span.SetAttributes(attribute.StringSlice("schedule.oncall", names))
	return names, nil
}

// covering returns the earliest-starting event whose interval contains now.
// Both boundaries are inclusive. Events with unparsable boundaries are
// skipped with a warning.
func (r *Resolver) covering(ctx context.Context, events []Event, now time.Time, loc *time.Location) (Event, bool) {
	type slot struct {
		ev         Event
		start, end time.Time
	}

	slots := make([]slot, 0, len(events))
	for _, ev := range events {
		start, err := ev.Start.At(loc)
		if err != nil {
			r.logger.Warn(ctx, "skipping event with bad start", "summary", ev.Summary, "error", err)
			continue
		}
		end, err := ev.End.At(loc)
		if err != nil {
			r.logger.Warn(ctx, "skipping event with bad end", "summary", ev.Summary, "error", err)
			continue
		}
		slots = append(slots, slot{ev: ev, start: start, end: end})
	}

	// oracle order is not trusted
	slices.SortStableFunc(slots, func(a, b slot) int { return a.start.Compare(b.start) })

	for _, s := range slots {
		if !now.Before(s.start) && !now.After(s.end) {
			return s.ev, true
		}
	}
	return Event{}, false
}

// location loads and caches the oracle's time zone. Failures are not cached.
func (r *Resolver) location(ctx context.Context) (*time.Location, error) {
	r.locMu.Lock()
	defer r.locMu.Unlock()
	if r.loc != nil {
		return r.loc, nil
	}

	name, err := r.oracle.TimeZone(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedule time zone: %w", err)
	}
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	r.loc = loc
	return loc, nil
}

// SplitNames splits a rotation label on commas, trims whitespace, drops empty
// parts and removes duplicates keeping first-seen order.
func SplitNames(label string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for part := range strings.SplitSeq(label, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
