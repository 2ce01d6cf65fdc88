package incident

import (
	"encoding/json"
	"time"

	"github.com/linnemanlabs/beacon/internal/alert"
)

// DefaultRenotifyInterval is how long a firing incident stays quiet before it
// triggers another notification.
const DefaultRenotifyInterval = 24 * time.Hour

// Decision is what the caller should do about notifications after a transition.
type Decision string

const (
	// DecisionNoOp means nothing should be sent.
	DecisionNoOp Decision = "none"

	// DecisionNotify covers both a new incident and a renotify of a stale one.
	DecisionNotify Decision = "notify"

	// DecisionNotifyResolution means the incident was just resolved.
	DecisionNotifyResolution Decision = "resolved"
)

// Signal is a classified alert ready for the state machine.
type Signal struct {
	Kind    alert.Kind
	Monitor string
	Payload json.RawMessage
	Now     time.Time
}

// Transition computes the next state of the firing incident for sig.Monitor
// (nil when there is none) and whether to notify. It never mutates firing.
// A nil next state means the store must not change.
func Transition(firing *Incident, sig Signal, renotify time.Duration) (*Incident, Decision) {
	now := sig.Now.Unix()
	rec := Record{TS: now, Payload: sig.Payload}

	if !firing.Firing() {
		firing = nil
	}

	if sig.Kind == alert.KindResolution {
		if firing == nil {
			return nil, DecisionNoOp
		}
		next := firing.Clone()
		next.Status = StatusResolved
		next.ResolvedTS = &now
		next.Alerts = append(next.Alerts, rec)
		return next, DecisionNotifyResolution
	}

	if firing == nil {
		return &Incident{
			MonitorName:            sig.Monitor,
			Status:                 StatusFiring,
			FirstOccurrenceTS:      now,
			LastNotificationSentTS: now,
			Alerts:                 []Record{rec},
		}, DecisionNotify
	}

	next := firing.Clone()
	next.Alerts = append(next.Alerts, rec)
	if now-firing.LastNotificationSentTS > int64(renotify/time.Second) {
		next.LastNotificationSentTS = now
		return next, DecisionNotify
	}
	return next, DecisionNoOp
}
