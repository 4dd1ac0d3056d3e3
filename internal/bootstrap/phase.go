// Package bootstrap implements the learner that fills Anna's vocabulary by
// questioning a hosted mentor model, then hands over to the local model.
package bootstrap

// Phase is the learner's position in its lifecycle.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
	PhaseAutonomous Phase = "autonomous"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNotStarted, PhaseInProgress, PhaseCompleted, PhaseAutonomous:
		return true
	}
	return false
}
