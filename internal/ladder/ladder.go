// Package ladder implements the bounded retry policy shared by workflow
// dispatch and incident recovery: an ordered list of action kinds with
// per-kind attempt caps, exhausted strictly in declared order before an
// escalate signal fires.
package ladder

import (
	"fmt"
	"strings"
)

type Rung struct {
	Kind        string `json:"kind" yaml:"kind"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
}

// Attempt is one historical execution of a rung's action.
type Attempt struct {
	Kind    string `json:"kind"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

type Ladder struct {
	Rungs []Rung `json:"rungs" yaml:"rungs"`

	// Ceiling caps total attempts across every kind. Zero means no
	// global ceiling; the per-rung caps still bound the ladder.
	Ceiling int `json:"ceiling,omitempty" yaml:"ceiling,omitempty"`
}

// Decision is the ladder's answer for a given history: either the next
// action kind to attempt, or a terminal escalate signal with a reason.
type Decision struct {
	Action   string
	Escalate bool
	Reason   string
}

// Single builds the degenerate one-rung ladder used for plain re-dispatch
// retries in the workflow engine.
func Single(kind string, maxAttempts int) Ladder {
	return Ladder{Rungs: []Rung{{Kind: kind, MaxAttempts: maxAttempts}}}
}

func (l Ladder) Validate() error {
	if len(l.Rungs) == 0 {
		return fmt.Errorf("ladder: at least one rung is required")
	}
	seen := map[string]bool{}
	for i, r := range l.Rungs {
		kind := strings.TrimSpace(r.Kind)
		if kind == "" {
			return fmt.Errorf("ladder: rung %d has an empty kind", i)
		}
		if r.MaxAttempts <= 0 {
			return fmt.Errorf("ladder: rung %q needs a positive attempt cap", kind)
		}
		if seen[kind] {
			return fmt.Errorf("ladder: duplicate rung kind %q", kind)
		}
		seen[kind] = true
	}
	if l.Ceiling < 0 {
		return fmt.Errorf("ladder: ceiling must be >= 0")
	}
	return nil
}

// Next is pure and replayable: the same history always yields the same
// decision, independent of wall-clock time. Rungs are consumed strictly
// in declared order; a later rung is never selected while an earlier one
// has attempts remaining, even if the earlier rung is currently failing.
// Escalation fires when every rung is capped with only failing outcomes,
// or when the global ceiling is reached, whichever comes first.
func (l Ladder) Next(history []Attempt) Decision {
	if err := l.Validate(); err != nil {
		return Decision{Escalate: true, Reason: err.Error()}
	}
	if l.Ceiling > 0 && len(history) >= l.Ceiling {
		return Decision{
			Escalate: true,
			Reason:   fmt.Sprintf("global attempt ceiling reached (%d)", l.Ceiling),
		}
	}
	counts := map[string]int{}
	for _, a := range history {
		counts[a.Kind]++
	}
	for _, r := range l.Rungs {
		if counts[r.Kind] < r.MaxAttempts {
			return Decision{Action: r.Kind}
		}
	}
	return Decision{Escalate: true, Reason: "all recovery actions exhausted"}
}

// Remaining reports how many attempts the given kind still has under its
// cap. Unknown kinds have no budget.
func (l Ladder) Remaining(kind string, history []Attempt) int {
	used := 0
	for _, a := range history {
		if a.Kind == kind {
			used++
		}
	}
	for _, r := range l.Rungs {
		if r.Kind == kind {
			if rem := r.MaxAttempts - used; rem > 0 {
				return rem
			}
			return 0
		}
	}
	return 0
}
