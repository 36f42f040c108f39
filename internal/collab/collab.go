// Package collab adapts external processes into the engine's collaborator
// interfaces. Each collaborator is an argv that reads a JSON request on
// stdin and writes a JSON reply on stdout; everything the process prints
// to stderr is the operator's problem, not the engine's.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/attargo/overseer/internal/escalation"
	"github.com/attargo/overseer/internal/plan"
	"github.com/attargo/overseer/internal/task"
)

const defaultTimeout = 5 * time.Minute

// run executes argv with req as JSON on stdin and returns stdout bytes.
func run(ctx context.Context, argv []string, timeout time.Duration, req any) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("collab: empty command")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("collab: encode request: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("collab: %s: %s", argv[0], msg)
		}
		return nil, fmt.Errorf("collab: %s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}

// Planner asks an external process for a breakdown. The reply is decoded
// and schema-validated by plan.DecodeBreakdownJSON.
type Planner struct {
	Argv    []string
	Timeout time.Duration
}

type plannerRequest struct {
	Goal  string   `json:"goal"`
	Roles []string `json:"roles"`
}

func (p Planner) Plan(ctx context.Context, goal string, roles []string) (plan.Breakdown, error) {
	out, err := run(ctx, p.Argv, p.Timeout, plannerRequest{Goal: goal, Roles: roles})
	if err != nil {
		return plan.Breakdown{}, err
	}
	return plan.DecodeBreakdownJSON(out)
}

// Worker dispatches one task to an external process. The task is passed
// by value on stdin; the process can read context and feedback but never
// touches lifecycle state.
type Worker struct {
	Argv    []string
	Timeout time.Duration
}

func (w Worker) Execute(ctx context.Context, t task.Task) (task.Result, error) {
	out, err := run(ctx, w.Argv, w.Timeout, t)
	if err != nil {
		return task.Result{}, err
	}
	var res task.Result
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return task.Result{}, fmt.Errorf("collab: %s: bad result json: %w", w.Argv[0], err)
	}
	if !res.Success && strings.TrimSpace(res.Error) == "" {
		res.Error = "worker reported failure without a reason"
	}
	return res, nil
}

// Coordinator asks an external process to decide on an escalation.
type Coordinator struct {
	Argv    []string
	Timeout time.Duration
}

func (c Coordinator) Decide(ctx context.Context, esc escalation.Escalation) (escalation.Decision, error) {
	out, err := run(ctx, c.Argv, c.Timeout, esc)
	if err != nil {
		return escalation.Decision{}, err
	}
	var d escalation.Decision
	if err := json.Unmarshal(bytes.TrimSpace(out), &d); err != nil {
		return escalation.Decision{}, fmt.Errorf("collab: %s: bad decision json: %w", c.Argv[0], err)
	}
	return d, nil
}
