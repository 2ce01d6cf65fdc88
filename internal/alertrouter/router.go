// Package alertrouter turns one inbound alert into an incident update and,
// when the incident state machine says so, a notification fan-out.
//
// Persistence always precedes notification: the incident cycle must commit
// before any on-call lookup or delivery is attempted.
package alertrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/beacon/internal/alert"
	"github.com/linnemanlabs/beacon/internal/contacts"
	"github.com/linnemanlabs/beacon/internal/incident"
	"github.com/linnemanlabs/beacon/internal/notify"
)

var tracer = otel.Tracer("github.com/linnemanlabs/beacon/internal/alertrouter")

var (
	// ErrInvalidInput means the payload cannot be routed. Nothing was stored.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence means the incident cycle failed. Nothing was dispatched.
	ErrPersistence = errors.New("incident persistence failed")

	// ErrScheduleLookup means on-call resolution failed after the incident
	// update was persisted. Nothing was dispatched.
	ErrScheduleLookup = errors.New("schedule lookup failed")
)

// Status is the outcome reported to the caller.
type Status string

const (
	StatusOK             Status = "ok"
	StatusSent           Status = "sent"
	StatusPartialFailure Status = "partial_failure"
	StatusNoOnCall       Status = "no on-call found"
	StatusError          Status = "error"
)

// Result is the structured response for one alert.
type Result struct {
	Status     Status            `json:"status"`
	Decision   incident.Decision `json:"decision,omitempty"`
	IncidentID int64             `json:"incident_id,omitempty"`
	OnCall     []string          `json:"oncall,omitempty"`
	Failures   []string          `json:"failures,omitempty"`
	DispatchID string            `json:"dispatch_id,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// OnCallResolver names who is on call at a given time.
type OnCallResolver interface {
	ResolveOnCall(ctx context.Context, now time.Time) ([]string, error)
}

// ContactLookup maps a person to their channel addresses.
type ContactLookup interface {
	Lookup(name string) (contacts.Contact, bool)
}

// Dispatcher fans a message out to targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, message string, targets []notify.Target) *notify.Report
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnResult       func(status Status, decision incident.Decision, d time.Duration)
	OnStoreCycle   func(err error, d time.Duration)
	OnOnCallLookup func(err error, names int, d time.Duration)
}

// Options tune routing. Zero values select the defaults.
type Options struct {
	// Renotify is the minimum gap between notifications for one firing incident.
	Renotify time.Duration
	// Classifier decides problem vs resolution.
	Classifier alert.Classifier
	// PushChannel receives every on-call person, addressed by Contact.Pushover.
	PushChannel string
	// ChatChannel additionally receives on-call people with a Contact.Telegram id.
	// Empty disables per-person chat delivery.
	ChatChannel string
	// Broadcast targets get every alert and every resolution.
	Broadcast []notify.Target
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	Hooks Hooks
}

// Router is the orchestration boundary for inbound alerts.
type Router struct {
	store    incident.Store
	oncall   OnCallResolver
	contacts ContactLookup
	dispatch Dispatcher
	logger   log.Logger
	opts     Options
}

// New creates a Router. store, oncall and dispatch are required.
func New(store incident.Store, oncall OnCallResolver, dir ContactLookup, dispatch Dispatcher, logger log.Logger, opts Options) *Router {
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	if oncall == nil {
		panic(xerrors.New("on-call resolver is required"))
	}
	if dispatch == nil {
		panic(xerrors.New("dispatcher is required"))
	}
	if dir == nil {
		dir = contacts.New(nil)
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.Renotify <= 0 {
		opts.Renotify = incident.DefaultRenotifyInterval
	}
	if opts.Classifier == nil {
		opts.Classifier = alert.MarkerClassifier(alert.DefaultRecoveryMarker)
	}
	if opts.PushChannel == "" {
		opts.PushChannel = "pushover"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		store:    store,
		oncall:   oncall,
		contacts: dir,
		dispatch: dispatch,
		logger:   logger,
		opts:     opts,
	}
}

// Handle routes one alert. On error the returned Result, when non-nil,
// still carries whatever was committed (e.g. the incident id).
func (r *Router) Handle(ctx context.Context, p *alert.Payload) (res *Result, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "alertrouter.Handle")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res != nil {
			span.SetAttributes(attribute.String("beacon.result.status", string(res.Status)))
			if r.opts.Hooks.OnResult != nil {
				r.opts.Hooks.OnResult(res.Status, res.Decision, time.Since(start))
			}
		}
		span.End()
	}()

	if verr := p.Validate(); verr != nil {
		return &Result{Status: StatusError, Error: verr.Error()}, fmt.Errorf("%w: %w", ErrInvalidInput, verr)
	}

	kind := r.opts.Classifier(p)
	now := r.opts.Now()
	span.SetAttributes(
		attribute.String("beacon.monitor", p.Monitor),
		attribute.String("beacon.alert.kind", string(kind)),
	)
	L := r.logger.With("monitor", p.Monitor, "kind", kind)

	saved, decision, err := r.apply(ctx, p, kind, now)
	if err != nil {
		L.Error(ctx, err, "incident update failed")
		return &Result{Status: StatusError, Error: "incident persistence failed"}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("beacon.decision", string(decision)))

	res = &Result{Status: StatusOK, Decision: decision}
	if saved != nil {
		res.IncidentID = saved.ID
		span.SetAttributes(attribute.Int64("beacon.incident.id", saved.ID))
	}

	switch decision {
	case incident.DecisionNotifyResolution:
		rep := r.dispatch.Dispatch(ctx, ResolvedMessage(p), r.opts.Broadcast)
		r.applyReport(res, rep)
		L.Info(ctx, "incident resolved", "incident_id", res.IncidentID, "status", res.Status)
		return res, nil

	case incident.DecisionNotify:
		names, err := r.lookupOnCall(ctx, now)
		if err != nil {
			L.Error(ctx, err, "on-call lookup failed", "incident_id", res.IncidentID)
			res.Status = StatusError
			res.Error = "schedule lookup failed"
			return res, fmt.Errorf("%w: %w", ErrScheduleLookup, err)
		}
		if len(names) == 0 {
			res.Status = StatusNoOnCall
			L.Warn(ctx, "no one on call, nothing dispatched", "incident_id", res.IncidentID)
			return res, nil
		}
		res.OnCall = names

		rep := r.dispatch.Dispatch(ctx, AlertMessage(names, p), r.targets(names))
		r.applyReport(res, rep)
		L.Info(ctx, "alert dispatched",
			"incident_id", res.IncidentID,
			"oncall", strings.Join(names, ","),
			"status", res.Status,
			"failures", len(res.Failures),
		)
		return res, nil

	default:
		return res, nil
	}
}

// apply runs the state machine inside one atomic store cycle.
func (r *Router) apply(ctx context.Context, p *alert.Payload, kind alert.Kind, now time.Time) (*incident.Incident, incident.Decision, error) {
	start := time.Now()
	decision := incident.DecisionNoOp

	saved, err := r.store.Apply(ctx, p.Monitor, func(firing *incident.Incident) *incident.Incident {
		next, d := incident.Transition(firing, incident.Signal{
			Kind:    kind,
			Monitor: p.Monitor,
			Payload: p.Raw,
			Now:     now,
		}, r.opts.Renotify)
		decision = d
		return next
	})
	if r.opts.Hooks.OnStoreCycle != nil {
		r.opts.Hooks.OnStoreCycle(err, time.Since(start))
	}
	if err != nil {
		return nil, incident.DecisionNoOp, err
	}
	return saved, decision, nil
}

func (r *Router) lookupOnCall(ctx context.Context, now time.Time) ([]string, error) {
	start := time.Now()
	names, err := r.oncall.ResolveOnCall(ctx, now)
	if r.opts.Hooks.OnOnCallLookup != nil {
		r.opts.Hooks.OnOnCallLookup(err, len(names), time.Since(start))
	}
	return names, err
}

// targets builds the per-person targets for names followed by the broadcast
// targets. A person missing from the directory still gets a push target with
// no address so the miss is reported as a failed delivery.
func (r *Router) targets(names []string) []notify.Target {
	out := make([]notify.Target, 0, len(names)+len(r.opts.Broadcast))
	for _, name := range names {
		c, _ := r.contacts.Lookup(name)
		out = append(out, notify.Target{Person: name, Channel: r.opts.PushChannel, Address: c.Pushover})
		if r.opts.ChatChannel != "" && c.Telegram != "" {
			out = append(out, notify.Target{Person: name, Channel: r.opts.ChatChannel, Address: c.Telegram})
		}
	}
	return append(out, r.opts.Broadcast...)
}

func (r *Router) applyReport(res *Result, rep *notify.Report) {
	res.DispatchID = rep.ID
	switch rep.Status {
	case notify.StatusSent:
		res.Status = StatusSent
	case notify.StatusPartialFailure:
		res.Status = StatusPartialFailure
		res.Failures = rep.Failures()
	default:
		res.Status = StatusOK
	}
}

// Incidents lists stored incidents, optionally only those with status.
func (r *Router) Incidents(ctx context.Context, status incident.Status) ([]incident.Incident, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]incident.Incident, 0, len(list))
	for _, in := range list {
		if status == "" || in.Status == status {
			out = append(out, in)
		}
	}
	return out, nil
}

// Incident returns one incident by id.
func (r *Router) Incident(ctx context.Context, id int64) (*incident.Incident, bool, error) {
	return r.store.Get(ctx, id)
}

// OnCall returns who is on call right now.
func (r *Router) OnCall(ctx context.Context) ([]string, error) {
	return r.lookupOnCall(ctx, r.opts.Now())
}

// AlertMessage is the text sent for a new or re-notified problem.
func AlertMessage(names []string, p *alert.Payload) string {
	return fmt.Sprintf("On-call: %s\n[ALERT] %s - %s", strings.Join(names, ", "), p.DisplayTitle(), p.Message)
}

// ResolvedMessage is the text broadcast when an incident resolves.
func ResolvedMessage(p *alert.Payload) string {
	return fmt.Sprintf("[RESOLVED] %s - %s", p.DisplayTitle(), p.Message)
}
