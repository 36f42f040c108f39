package engine

import (
	"time"

	"github.com/attargo/overseer/internal/plan"
	"github.com/attargo/overseer/internal/task"
)

// DispatchRecord is one (subtask, attempt) dispatch. The per-role record
// lists are append-only: nothing is dropped or overwritten, so the result
// carries a complete audit trail.
type DispatchRecord struct {
	Subtask plan.Subtask `json:"subtask" msgpack:"subtask"`
	TaskID  string       `json:"task_id" msgpack:"task_id"`
	Attempt int          `json:"attempt" msgpack:"attempt"`
	Result  task.Result  `json:"result" msgpack:"result"`
	Fault   bool         `json:"fault,omitempty" msgpack:"fault"`
}

// WorkflowResult is the structured answer every submitted goal produces.
// Resolved is deliberately distinct from Success: a goal the coordinator
// resolved with a decision is a handled failure, not a success.
type WorkflowResult struct {
	GoalID   string        `json:"goal_id" msgpack:"goal_id"`
	Goal     string        `json:"goal" msgpack:"goal"`
	Priority task.Priority `json:"priority" msgpack:"priority"`

	Success          bool   `json:"success" msgpack:"success"`
	Escalated        bool   `json:"escalated" msgpack:"escalated"`
	EscalationReason string `json:"escalation_reason,omitempty" msgpack:"escalation_reason"`
	Resolved         bool   `json:"resolved,omitempty" msgpack:"resolved"`
	Decision         string `json:"decision,omitempty" msgpack:"decision"`
	NotifiedHuman    bool   `json:"notified_human,omitempty" msgpack:"notified_human"`

	Iterations int `json:"iterations" msgpack:"iterations"`

	// Records holds every dispatch keyed by worker role.
	Records map[string][]DispatchRecord `json:"records" msgpack:"records"`

	StartedAt  time.Time `json:"started_at" msgpack:"started_at"`
	FinishedAt time.Time `json:"finished_at" msgpack:"finished_at"`
}

func (r WorkflowResult) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Dispatches counts every record across roles.
func (r WorkflowResult) Dispatches() int {
	n := 0
	for _, recs := range r.Records {
		n += len(recs)
	}
	return n
}

// SummaryOptions controls how handled failures are tallied. Whether a
// resolved-with-decision goal counts toward the failure column is a policy
// choice, so it stays configurable instead of being baked in.
type SummaryOptions struct {
	ResolvedCountsAsFailure bool
}

type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Resolved  int `json:"resolved"`
}

// Summarize tallies a batch of workflow results under the given policy.
func Summarize(results []WorkflowResult, opts SummaryOptions) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Success:
			s.Succeeded++
		case r.Resolved:
			s.Resolved++
			if opts.ResolvedCountsAsFailure {
				s.Failed++
			}
		default:
			s.Failed++
		}
	}
	return s
}
