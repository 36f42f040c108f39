package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/attargo/overseer/internal/task"
)

// Worker executes one subtask. It receives the task by value and must not
// mutate lifecycle state; the engine owns the task. A returned error is a
// transport fault, counted like a failure but preserved verbatim in any
// eventual escalation reason.
type Worker interface {
	Execute(ctx context.Context, t task.Task) (task.Result, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, t task.Task) (task.Result, error)

func (f WorkerFunc) Execute(ctx context.Context, t task.Task) (task.Result, error) {
	return f(ctx, t)
}

// Registry maps worker roles to workers. An optional default worker
// handles roles the planner invented that nobody registered.
type Registry struct {
	mu            sync.RWMutex
	workers       map[string]Worker
	defaultWorker Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: map[string]Worker{}}
}

func (r *Registry) Register(role string, w Worker) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("worker registry: role is required")
	}
	if w == nil {
		return fmt.Errorf("worker registry: role %q needs a worker", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers == nil {
		r.workers = map[string]Worker{}
	}
	r.workers[role] = w
	return nil
}

// SetDefault installs the fallback worker for unregistered roles.
func (r *Registry) SetDefault(w Worker) {
	r.mu.Lock()
	r.defaultWorker = w
	r.mu.Unlock()
}

// Resolve returns the worker for a role, falling back to the default.
func (r *Registry) Resolve(role string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.workers[role]; ok {
		return w, nil
	}
	if r.defaultWorker != nil {
		return r.defaultWorker, nil
	}
	return nil, fmt.Errorf("no worker registered for role %q", role)
}

// Roles returns the registered role catalogue, sorted for determinism.
// This is what the planner collaborator is offered.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.workers))
	for role := range r.workers {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
