package incident

import "context"

// MutateFunc receives a private copy of the monitor's firing incident (nil if
// none) and returns the state to persist. Returning nil leaves the store
// untouched. An incident with ID 0 is inserted and assigned the next ID.
type MutateFunc func(firing *Incident) *Incident

// Store is the persistence interface for incidents.
type Store interface {
	// Apply runs one load-mutate-save cycle for monitor. Cycles for the same
	// monitor never interleave. It returns the persisted incident, or nil when
	// fn made no change.
	Apply(ctx context.Context, monitor string, fn MutateFunc) (*Incident, error)
	List(ctx context.Context) ([]Incident, error)
	Get(ctx context.Context, id int64) (*Incident, bool, error)
}

// FindFiring returns the index of the firing incident for monitor in list, or -1.
func FindFiring(list []Incident, monitor string) int {
	for i := range list {
		if list[i].MonitorName == monitor && list[i].Status == StatusFiring {
			return i
		}
	}
	return -1
}

// NextID returns one past the highest ID in list.
func NextID(list []Incident) int64 {
	var maxID int64
	for i := range list {
		if list[i].ID > maxID {
			maxID = list[i].ID
		}
	}
	return maxID + 1
}

// ApplyToList runs fn against the firing incident for monitor in list and
// merges the result back. It is the shared core of the whole-list backends.
// changed is false when fn returned nil.
func ApplyToList(list []Incident, monitor string, fn MutateFunc) (out []Incident, saved *Incident, changed bool) {
	idx := FindFiring(list, monitor)

	var firing *Incident
	if idx >= 0 {
		firing = list[idx].Clone()
	}

	next := fn(firing)
	if next == nil {
		return list, nil, false
	}
	next = next.Clone()
	next.MonitorName = monitor

	switch {
	case next.ID == 0:
		next.ID = NextID(list)
		list = append(list, *next)
	case idx >= 0 && list[idx].ID == next.ID:
		list[idx] = *next
	default:
		replaced := false
		for i := range list {
			if list[i].ID == next.ID {
				list[i] = *next
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, *next)
		}
	}
	return list, next.Clone(), true
}
