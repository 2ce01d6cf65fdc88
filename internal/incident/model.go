package incident

import (
	"encoding/json"
	"time"
)

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusFiring means the problem is currently unresolved
	StatusFiring Status = "firing"

	// StatusResolved means the monitor reported recovery
	StatusResolved Status = "resolved"
)

// Record is one raw alert received while an incident existed.
type Record struct {
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Incident is one ongoing or past problem for a single monitor.
type Incident struct {
	ID                     int64    `json:"id"`
	MonitorName            string   `json:"monitor_name"`
	Status                 Status   `json:"status"`
	FirstOccurrenceTS      int64    `json:"firstOccurrenceTS"`
	ResolvedTS             *int64   `json:"resolvedTS,omitempty"`
	LastNotificationSentTS int64    `json:"lastNotificationSentTS"`
	Alerts                 []Record `json:"alerts"`
}

// Firing reports whether the incident is still open.
func (i *Incident) Firing() bool {
	return i != nil && i.Status == StatusFiring
}

// FirstOccurrence returns FirstOccurrenceTS as a time.
func (i *Incident) FirstOccurrence() time.Time {
	return time.Unix(i.FirstOccurrenceTS, 0).UTC()
}

// Clone returns a deep copy so stores never hand out shared history slices.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	cp := *i
	if i.ResolvedTS != nil {
		ts := *i.ResolvedTS
		cp.ResolvedTS = &ts
	}
	if i.Alerts != nil {
		cp.Alerts = make([]Record, len(i.Alerts))
		for n, r := range i.Alerts {
			cp.Alerts[n] = Record{TS: r.TS, Payload: append(json.RawMessage(nil), r.Payload...)}
		}
	}
	return &cp
}
