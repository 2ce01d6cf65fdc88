// Package notify fans a message out to delivery targets concurrently and
// aggregates the per-target outcome.
//
// One failing or slow target never blocks the others: every target gets its
// own goroutine, its own deadline and its own result slot. Delivery errors
// are recorded in the Report, never returned.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const tracerName = "github.com/linnemanlabs/beacon/internal/notify"

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNoContact means the target has no address, usually because the
	// person is missing from the contact directory.
	ErrNoContact = errors.New("no contact")

	// ErrUnknownChannel means no channel is registered under the target's name.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Channel is one delivery transport.
type Channel interface {
	// Name identifies the channel in targets, logs and metrics.
	Name() string
	// Send delivers message to address. Any non-nil error is a failed delivery.
	Send(ctx context.Context, address, message string) error
}

// Target is one (channel, address) pair. Person is empty for broadcast targets.
type Target struct {
	Person  string `json:"person,omitempty"`
	Channel string `json:"channel"`
	Address string `json:"-"`
}

// String identifies the target without exposing its address.
func (t Target) String() string {
	if t.Person == "" {
		return t.Channel
	}
	return t.Channel + ":" + t.Person
}

// Status summarizes a dispatch.
type Status string

const (
	StatusNoTargets      Status = "no_targets"
	StatusSent           Status = "sent"
	StatusPartialFailure Status = "partial_failure"
)

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Target   Target        `json:"target"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report aggregates every Outcome of one Dispatch call.
type Report struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failures returns one human-readable line per failed target, in target order.
func (r *Report) Failures() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, o := range r.Outcomes {
		if !o.OK {
			out = append(out, fmt.Sprintf("%s: %s", o.Target, o.Error))
		}
	}
	return out
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	// OnDelivery runs once per target after the attempt finishes.
	OnDelivery func(channel string, ok bool, d time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracer = tp.Tracer(tracerName) }
}

// Dispatcher delivers messages over registered channels.
type Dispatcher struct {
	channels map[string]Channel
	timeout  time.Duration
	logger   log.Logger
	hooks    Hooks
	tracer   trace.Tracer
}

// NewDispatcher registers channels by Name. A non-positive timeout falls back
// to DefaultTimeout.
func NewDispatcher(channels []Channel, timeout time.Duration, logger log.Logger, hooks Hooks, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{
		channels: make(map[string]Channel, len(channels)),
		timeout:  timeout,
		logger:   logger,
		hooks:    hooks,
		tracer:   otel.Tracer(tracerName),
	}
	for _, c := range channels {
		if c != nil {
			d.channels[c.Name()] = c
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Has reports whether a channel is registered under name.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.channels[name]
	return ok
}

// Dispatch attempts every target concurrently and waits for all of them.
// Cancelling ctx cancels pending deliveries of this call only.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, targets []Target) *Report {
	rep := &Report{ID: ulid.Make().String(), Outcomes: make([]Outcome, len(targets))}

	ctx, span := d.tracer.Start(ctx, "notify.Dispatch", trace.WithAttributes(
		attribute.String("dispatch.id", rep.ID),
		attribute.Int("dispatch.targets", len(targets)),
	))
	defer span.End()

	if len(targets) == 0 {
		rep.Status = StatusNoTargets
		span.SetAttributes(attribute.String("dispatch.status", string(rep.Status)))
		return rep
	}

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Go(func() {
			rep.Outcomes[i] = d.deliver(ctx, message, t)
		})
	}
	wg.Wait()

	failed := 0
	for _, o := range rep.Outcomes {
		if !o.OK {
			failed++
		}
	}
	rep.Status = StatusSent
	if failed > 0 {
		rep.Status = StatusPartialFailure
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d deliveries failed", failed, len(targets)))
	}
	span.SetAttributes(
		attribute.String("dispatch.status", string(rep.Status)),
		attribute.Int("dispatch.failed", failed),
	)

	d.logger.Info(ctx, "dispatch complete",
		"dispatch_id", rep.ID,
		"status", rep.Status,
		"targets", len(targets),
		"failed", failed,
	)
	return rep
}

func (d *Dispatcher) deliver(ctx context.Context, message string, t Target) Outcome {
	ctx, span := d.tracer.Start(ctx, "notify.Deliver", trace.WithAttributes(
		attribute.String("notify.channel", t.Channel),
		attribute.String("notify.person", t.Person),
	))
	defer span.End()

	start := time.Now()
	err := d.send(ctx, message, t)
	dur := time.Since(start)

	out := Outcome{Target: t, OK: err == nil, Duration: dur}
	if err != nil {
		out.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn(ctx, "delivery failed",
			"target", t.String(),
			"duration_s", dur.Seconds(),
			"error", err,
		)
	}

	if d.hooks.OnDelivery != nil {
		d.hooks.OnDelivery(t.Channel, out.OK, dur)
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, message string, t Target) error {
	ch, ok := d.channels[t.Channel]
	if !ok {
		return ErrUnknownChannel
	}
	if t.Address == "" {
		return ErrNoContact
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return ch.Send(ctx, t.Address, message)
}
