package alert

import "strings"

// Kind says whether an alert reports a problem or its recovery.
type Kind string

const (
	// KindProblem means the monitor reports something is wrong.
	KindProblem Kind = "problem"

	// KindResolution means the monitor reports recovery.
	KindResolution Kind = "resolution"
)

// DefaultRecoveryMarker is the substring uptime monitors put in recovery messages.
const DefaultRecoveryMarker = "Up"

// Classifier decides the Kind of a payload.
type Classifier func(p *Payload) Kind

// MarkerClassifier returns a Classifier that treats any message containing
// marker as a resolution. The match is a case-sensitive substring check, so
// "DOWN" is a problem and "[Up] recovered" a resolution; messages such as
// "Upstream timeout" will also match.
func MarkerClassifier(marker string) Classifier {
	if marker == "" {
		marker = DefaultRecoveryMarker
	}
	return func(p *Payload) Kind {
		if p != nil && strings.Contains(p.Message, marker) {
			return KindResolution
		}
		return KindProblem
	}
}
