package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued":
		return StatusPending, nil
	case "in_progress", "in-progress", "inprogress", "running":
		return StatusInProgress, nil
	case "completed", "complete", "done":
		return StatusCompleted, nil
	case "failed", "fail", "failure":
		return StatusFailed, nil
	case "blocked", "block":
		return StatusBlocked, nil
	default:
		return "", fmt.Errorf("invalid task status: %q", s)
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether the status alone forbids further dispatch.
// A failed/blocked task may still be retried while attempts remain;
// see Task.Terminal for the attempt-aware check.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "medium", "normal", "default":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical", "urgent":
		return PriorityCritical, nil
	default:
		return "", fmt.Errorf("invalid task priority: %q", s)
	}
}

// Result is a worker's report for one dispatch. Workers receive the task
// by value and report through Result only; lifecycle state stays with the
// owning engine.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Task struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       Status         `json:"status"`
	Priority     Priority       `json:"priority"`
	CreatedBy    string         `json:"created_by,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	Context      map[string]any `json:"context,omitempty"`
	Result       *Result        `json:"result,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewID returns a fresh ULID string, the id scheme used for tasks,
// incidents and goals alike.
func NewID() string {
	return ulid.Make().String()
}

type Spec struct {
	Type         string
	Title        string
	Description  string
	Priority     Priority
	CreatedBy    string
	ParentTaskID string
	MaxAttempts  int
	Context      map[string]any
}

const defaultMaxAttempts = 3

func New(spec Spec) *Task {
	if spec.MaxAttempts <= 0 {
		spec.MaxAttempts = defaultMaxAttempts
	}
	if spec.Priority == "" {
		spec.Priority = PriorityMedium
	}
	ctx := spec.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	now := time.Now().UTC()
	return &Task{
		ID:           NewID(),
		Type:         spec.Type,
		Title:        spec.Title,
		Description:  spec.Description,
		Status:       StatusPending,
		Priority:     spec.Priority,
		CreatedBy:    spec.CreatedBy,
		ParentTaskID: spec.ParentTaskID,
		MaxAttempts:  spec.MaxAttempts,
		Context:      ctx,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Terminal reports whether the task may never be dispatched again:
// completed is absorbing, and a task that has consumed every attempt is
// terminal regardless of its status value.
func (t *Task) Terminal() bool {
	if t.Status == StatusCompleted {
		return true
	}
	return t.Attempts >= t.MaxAttempts
}

// Start moves the task into in_progress for a dispatch. The first start
// consumes the first attempt; retries consume theirs in Retry.
func (t *Task) Start() error {
	switch t.Status {
	case StatusPending:
	case StatusInProgress:
		return fmt.Errorf("task %s: already in progress", t.ID)
	default:
		return fmt.Errorf("task %s: cannot start from status %q", t.ID, t.Status)
	}
	if t.Attempts >= t.MaxAttempts {
		return fmt.Errorf("task %s: no attempts remaining (%d/%d)", t.ID, t.Attempts, t.MaxAttempts)
	}
	t.Attempts++
	t.Status = StatusInProgress
	t.touch()
	return nil
}

// Complete records a successful result. completed is absorbing: no
// transition out of it is ever accepted.
func (t *Task) Complete(res Result) error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %s: cannot complete from status %q", t.ID, t.Status)
	}
	res.Success = true
	t.Result = &res
	t.Status = StatusCompleted
	t.touch()
	return nil
}

func (t *Task) Fail(reason string) error {
	return t.finishUnsuccessful(StatusFailed, reason)
}

func (t *Task) Block(reason string) error {
	return t.finishUnsuccessful(StatusBlocked, reason)
}

func (t *Task) finishUnsuccessful(status Status, reason string) error {
	if t.Status == StatusCompleted {
		return fmt.Errorf("task %s: completed is terminal", t.ID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %s: cannot move to %q from status %q", t.ID, status, t.Status)
	}
	t.Result = &Result{Success: false, Error: reason}
	t.Status = status
	t.touch()
	return nil
}

// Retry re-arms a failed or blocked task for the same subtask position.
// Corrective feedback, when present, is appended to the context bag so the
// next dispatch sees it. The attempt is consumed by the next Start.
func (t *Task) Retry(feedback string) error {
	switch t.Status {
	case StatusFailed, StatusBlocked:
	default:
		return fmt.Errorf("task %s: cannot retry from status %q", t.ID, t.Status)
	}
	if t.Attempts >= t.MaxAttempts {
		return fmt.Errorf("task %s: attempts exhausted (%d/%d)", t.ID, t.Attempts, t.MaxAttempts)
	}
	if feedback = strings.TrimSpace(feedback); feedback != "" {
		t.appendFeedback(feedback)
	}
	t.Status = StatusPending
	t.touch()
	return nil
}

func (t *Task) appendFeedback(feedback string) {
	if t.Context == nil {
		t.Context = map[string]any{}
	}
	prior, _ := t.Context["feedback"].([]string)
	t.Context["feedback"] = append(prior, feedback)
}

// LastError returns the failure text of the most recent result, if any.
func (t *Task) LastError() string {
	if t.Result == nil {
		return ""
	}
	return t.Result.Error
}

func (t *Task) touch() {
	t.UpdatedAt = time.Now().UTC()
}
