// Package engine drives a goal through planning, ordered dispatch, bounded
// retry and goal-level escalation. One engine instance owns its active
// tasks outright; independent goals run on independent instances with no
// shared mutable state.
package engine

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/attargo/overseer/internal/archive"
	"github.com/attargo/overseer/internal/escalation"
	"github.com/attargo/overseer/internal/ladder"
	"github.com/attargo/overseer/internal/plan"
	"github.com/attargo/overseer/internal/task"
)

// Advisor supplies a short corrective-guidance string after a failed
// dispatch, appended to the task context before re-dispatch. Optional; a
// faulting advisor is skipped, never fatal.
type Advisor interface {
	Advise(ctx context.Context, t task.Task, failure string) (string, error)
}

// Escalator receives goals whose subtasks exhausted their attempts.
// *escalation.Chain satisfies this.
type Escalator interface {
	Escalate(ctx context.Context, esc escalation.Escalation) escalation.Outcome
}

const (
	defaultMaxAttempts     = 3
	defaultIterationBudget = 24

	// redispatchKind is the single rung of the workflow retry ladder;
	// incident recovery runs richer ladders through the same policy.
	redispatchKind = "redispatch"
)

type Config struct {
	Planner plan.Planner
	Workers *Registry

	// Optional collaborators.
	Advisor   Advisor
	Escalator Escalator
	Archive   *archive.Store
	Logger    *zap.Logger

	// MaxAttempts bounds dispatches per subtask; IterationBudget bounds
	// dispatches across the whole goal.
	MaxAttempts     int
	IterationBudget int

	Backoff ladder.BackoffConfig

	// Sleep is the retry delay hook; tests inject an immediate return.
	// It reports false when the context was canceled mid-sleep.
	Sleep func(ctx context.Context, d time.Duration) bool

	Clock func() time.Time
}

func (c *Config) applyDefaults() error {
	if c.Planner == nil {
		return fmt.Errorf("engine: planner is required")
	}
	if c.Workers == nil {
		return fmt.Errorf("engine: worker registry is required")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.IterationBudget <= 0 {
		c.IterationBudget = defaultIterationBudget
	}
	if c.Backoff == (ladder.BackoffConfig{}) {
		c.Backoff = ladder.DefaultBackoffConfig()
	}
	if c.Sleep == nil {
		c.Sleep = sleepWithContext
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

type Engine struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task.Task
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		log:   cfg.Logger,
		tasks: map[string]*task.Task{},
	}, nil
}

// ExecuteGoal plans the goal, dispatches each subtask in declared order
// with at most one dispatch in flight, retries failures under the ladder,
// and escalates on exhaustion. The caller always gets a structured result;
// there is no path that produces nothing.
func (e *Engine) ExecuteGoal(ctx context.Context, description string, priority task.Priority) WorkflowResult {
	goalID := task.NewID()
	result := WorkflowResult{
		GoalID:    goalID,
		Goal:      description,
		Priority:  priority,
		Records:   map[string][]DispatchRecord{},
		StartedAt: e.cfg.Clock(),
	}
	log := e.log.With(zap.String("goal_id", goalID))

	breakdown := e.obtainBreakdown(ctx, log, description)
	retryLadder := ladder.Single(redispatchKind, e.cfg.MaxAttempts)

order:
	for _, ref := range breakdown.Order {
		subtask, err := breakdown.Resolve(ref)
		if err != nil {
			// Normalized breakdowns cannot hit this; keep the engine
			// honest anyway.
			e.escalate(ctx, log, &result, err.Error())
			break order
		}
		worker, err := e.cfg.Workers.Resolve(subtask.Role)
		if err != nil {
			e.escalate(ctx, log, &result, err.Error())
			break order
		}

		t := e.newTask(goalID, subtask, priority)
		var history []ladder.Attempt

		for {
			if result.Iterations >= e.cfg.IterationBudget {
				e.escalate(ctx, log, &result, fmt.Sprintf(
					"iteration budget (%d) exhausted before goal completion", e.cfg.IterationBudget))
				break order
			}
			result.Iterations++

			if err := t.Start(); err != nil {
				e.escalate(ctx, log, &result, err.Error())
				break order
			}
			log.Debug("dispatching subtask",
				zap.String("task_id", t.ID),
				zap.String("role", subtask.Role),
				zap.Int("attempt", t.Attempts))

			res, fault := dispatch(ctx, worker, *t)
			result.Records[subtask.Role] = append(result.Records[subtask.Role], DispatchRecord{
				Subtask: subtask,
				TaskID:  t.ID,
				Attempt: t.Attempts,
				Result:  res,
				Fault:   fault,
			})

			if res.Success {
				if err := t.Complete(res); err != nil {
					e.escalate(ctx, log, &result, err.Error())
					break order
				}
				continue order
			}

			failure := res.Error
			if strings.TrimSpace(failure) == "" {
				failure = "worker reported failure without a reason"
			}
			_ = t.Fail(failure)
			history = append(history, ladder.Attempt{Kind: redispatchKind, Success: false, Detail: failure})

			decision := retryLadder.Next(history)
			if decision.Escalate {
				// Fail fast: later order entries may depend on artifacts
				// this subtask never produced.
				e.escalate(ctx, log, &result, failure)
				break order
			}

			feedback := e.advise(ctx, log, *t, failure)
			if err := t.Retry(feedback); err != nil {
				e.escalate(ctx, log, &result, err.Error())
				break order
			}
			delay := ladder.DelayFor(goalID, t.ID, t.Attempts, e.cfg.Backoff)
			if !e.cfg.Sleep(ctx, delay) {
				e.escalate(ctx, log, &result, contextReason(ctx, failure))
				break order
			}
		}
	}

	if !result.Escalated {
		result.Success = true
	}
	result.FinishedAt = e.cfg.Clock()
	e.persist(log, result)
	log.Info("goal finished",
		zap.Bool("success", result.Success),
		zap.Bool("escalated", result.Escalated),
		zap.Int("iterations", result.Iterations))
	return result
}

// obtainBreakdown asks the planner and fails closed: a planner fault, an
// empty breakdown or a malformed one all collapse into a single default
// subtask whose description is the raw goal text, so a submitted goal
// always makes forward progress.
func (e *Engine) obtainBreakdown(ctx context.Context, log *zap.Logger, description string) plan.Breakdown {
	b, err := e.cfg.Planner.Plan(ctx, description, e.cfg.Workers.Roles())
	if err != nil {
		log.Warn("planner fault, synthesizing default subtask", zap.Error(err))
		return e.defaultBreakdown(description)
	}
	if b.Empty() {
		log.Warn("planner returned an empty breakdown, synthesizing default subtask")
		return e.defaultBreakdown(description)
	}
	normalized, err := b.Normalized()
	if err != nil {
		log.Warn("malformed breakdown, synthesizing default subtask", zap.Error(err))
		return e.defaultBreakdown(description)
	}
	return normalized
}

func (e *Engine) defaultBreakdown(description string) plan.Breakdown {
	role := ""
	if roles := e.cfg.Workers.Roles(); len(roles) > 0 {
		role = roles[0]
	}
	b := plan.Breakdown{Subtasks: []plan.Subtask{{
		Role:        role,
		Title:       "default subtask",
		Description: description,
	}}}
	normalized, err := b.Normalized()
	if err != nil {
		// Only reachable with an empty registry and a blank goal; the
		// single-entry declaration order is still well formed.
		b.Order = []plan.OrderRef{{Role: role, Index: 0}}
		return b
	}
	return normalized
}

func (e *Engine) newTask(goalID string, subtask plan.Subtask, priority task.Priority) *task.Task {
	t := task.New(task.Spec{
		Type:         "subtask",
		Title:        subtask.Title,
		Description:  subtask.Description,
		Priority:     priority,
		CreatedBy:    "engine",
		ParentTaskID: goalID,
		MaxAttempts:  e.cfg.MaxAttempts,
		Context:      map[string]any{"role": subtask.Role},
	})
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	return t
}

// Task returns a copy of an active task for inspection. Lifecycle state
// is only ever mutated by the engine's own loop.
func (e *Engine) Task(id string) (task.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return *t, true
}

// dispatch runs one worker execution, converting transport faults and
// worker panics into failed results whose text is preserved verbatim.
func dispatch(ctx context.Context, w Worker, t task.Task) (res task.Result, fault bool) {
	defer func() {
		if r := recover(); r != nil {
			res = task.Result{Success: false, Error: fmt.Sprintf("worker panic: %v", r)}
			fault = true
		}
	}()
	res, err := w.Execute(ctx, t)
	if err != nil {
		return task.Result{Success: false, Error: err.Error()}, true
	}
	return res, false
}

func (e *Engine) advise(ctx context.Context, log *zap.Logger, t task.Task, failure string) string {
	if e.cfg.Advisor == nil {
		return ""
	}
	guidance, err := e.cfg.Advisor.Advise(ctx, t, failure)
	if err != nil {
		log.Warn("advisor fault, retrying without guidance", zap.Error(err))
		return ""
	}
	return guidance
}

func (e *Engine) escalate(ctx context.Context, log *zap.Logger, result *WorkflowResult, reason string) {
	result.Escalated = true
	result.EscalationReason = reason
	log.Warn("goal escalated", zap.String("reason", reason))
	if e.cfg.Escalator == nil {
		return
	}
	out := e.cfg.Escalator.Escalate(ctx, escalation.Escalation{
		Ref:    escalation.Reference{ID: result.GoalID, Kind: "goal", Summary: result.Goal},
		Reason: reason,
		At:     e.cfg.Clock(),
	})
	result.Resolved = out.Resolved
	result.Decision = out.Decision
	result.NotifiedHuman = out.NotifiedHuman
}

// persist archives the result best-effort; a broken archive never fails
// the workflow.
func (e *Engine) persist(log *zap.Logger, result WorkflowResult) {
	if e.cfg.Archive == nil {
		return
	}
	base := path.Join("goals", result.GoalID)
	if err := e.cfg.Archive.PutJSON(path.Join(base, "result.json"), result); err != nil {
		log.Warn("archive write failed", zap.Error(err))
	}
	if err := e.cfg.Archive.PutSnapshot(path.Join(base, "result.msgpack"), result); err != nil {
		log.Warn("archive snapshot failed", zap.Error(err))
	}
}

func contextReason(ctx context.Context, fallback string) string {
	if cause := context.Cause(ctx); cause != nil && strings.TrimSpace(cause.Error()) != "" {
		return cause.Error()
	}
	return fallback
}

func sleepWithContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
