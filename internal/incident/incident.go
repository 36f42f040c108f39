// Package incident applies the retry ladder to operational recovery: an
// incident walks an ordered list of recovery actions under per-action
// caps, then escalates through the same chain of authority the workflow
// engine uses.
package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/attargo/overseer/internal/ladder"
	"github.com/attargo/overseer/internal/task"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type State string

const (
	StateDetected      State = "detected"
	StateAcknowledged  State = "acknowledged"
	StateInvestigating State = "investigating"
	StateRecovering    State = "recovering"
	StateResolved      State = "resolved"
	StateEscalated     State = "escalated"
)

// Event is one entry in the incident's ordered timeline.
type Event struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// RecoveryAttempt is one executed recovery action with its outcome.
type RecoveryAttempt struct {
	Action  string    `json:"action"`
	Success bool      `json:"success"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

type Incident struct {
	ID       string            `json:"id"`
	Summary  string            `json:"summary"`
	Severity Severity          `json:"severity"`
	State    State             `json:"state"`
	Timeline []Event           `json:"timeline"`
	Attempts []RecoveryAttempt `json:"attempts"`
}

func New(summary string, severity Severity) *Incident {
	if severity == "" {
		severity = SeverityMedium
	}
	inc := &Incident{
		ID:       task.NewID(),
		Summary:  summary,
		Severity: severity,
		State:    StateDetected,
	}
	inc.record("detected", summary, time.Now().UTC())
	return inc
}

func (i *Incident) record(kind, detail string, at time.Time) {
	i.Timeline = append(i.Timeline, Event{At: at, Kind: kind, Detail: detail})
}

func (i *Incident) transition(to State, detail string, at time.Time) error {
	if i.State == StateResolved || i.State == StateEscalated {
		return fmt.Errorf("incident %s: %s is terminal", i.ID, i.State)
	}
	i.State = to
	i.record(string(to), detail, at)
	return nil
}

// History projects the recovery attempts into ladder attempts, so the
// policy can be replayed from the incident record alone.
func (i *Incident) History() []ladder.Attempt {
	out := make([]ladder.Attempt, 0, len(i.Attempts))
	for _, a := range i.Attempts {
		out = append(out, ladder.Attempt{Kind: a.Action, Success: a.Success, Detail: a.Detail})
	}
	return out
}

func (i *Incident) recordAttempt(action string, success bool, detail string, at time.Time) {
	detail = strings.TrimSpace(detail)
	i.Attempts = append(i.Attempts, RecoveryAttempt{Action: action, Success: success, Detail: detail, At: at})
	outcome := "succeeded"
	if !success {
		outcome = "failed"
	}
	i.record("recovery_attempt", fmt.Sprintf("%s %s: %s", action, outcome, detail), at)
}
