package collab

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/attargo/overseer/internal/escalation"
	"github.com/attargo/overseer/internal/task"
)

func sh(script string) []string {
	return []string{"sh", "-c", script}
}

func TestPlanner_DecodesBreakdown(t *testing.T) {
	p := Planner{Argv: sh(`cat >/dev/null; printf '%s' '{"subtasks":[{"role":"coder","description":"write it"}],"order":["coder:0"]}'`)}
	b, err := p.Plan(context.Background(), "write it", []string{"coder"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(b.Subtasks) != 1 || b.Subtasks[0].Role != "coder" {
		t.Fatalf("breakdown=%+v", b)
	}
}

func TestPlanner_RejectsMalformedOutput(t *testing.T) {
	p := Planner{Argv: sh(`cat >/dev/null; echo 'here is your plan: 1) do stuff'`)}
	if _, err := p.Plan(context.Background(), "g", nil); err == nil {
		t.Fatal("expected decode error for free text")
	}
}

func TestWorker_RoundTrip(t *testing.T) {
	// The fake worker echoes the task description back as output.
	w := Worker{Argv: sh(`printf '{"success":true,"output":"did: %s"}' "$(cat | sed -n 's/.*"description":"\([^"]*\)".*/\1/p')"`)}
	res, err := w.Execute(context.Background(), task.Task{Description: "compile"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || !strings.Contains(res.Output, "compile") {
		t.Fatalf("result=%+v", res)
	}
}

func TestWorker_FailureWithoutReasonGetsOne(t *testing.T) {
	w := Worker{Argv: sh(`cat >/dev/null; printf '{"success":false}'`)}
	res, err := w.Execute(context.Background(), task.Task{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("result=%+v", res)
	}
}

func TestWorker_ProcessFailureIsTransportFault(t *testing.T) {
	w := Worker{Argv: sh(`cat >/dev/null; echo 'agent crashed: out of credits' >&2; exit 3`)}
	_, err := w.Execute(context.Background(), task.Task{})
	if err == nil {
		t.Fatal("expected transport fault")
	}
	if !strings.Contains(err.Error(), "out of credits") {
		t.Fatalf("err=%v want stderr text preserved", err)
	}
}

func TestWorker_Timeout(t *testing.T) {
	w := Worker{Argv: sh(`sleep 5`), Timeout: 50 * time.Millisecond}
	if _, err := w.Execute(context.Background(), task.Task{}); err == nil {
		t.Fatal("expected timeout fault")
	}
}

func TestCoordinator_Decision(t *testing.T) {
	c := Coordinator{Argv: sh(`cat >/dev/null; printf '{"guidance":"skip the flaky test"}'`)}
	d, err := c.Decide(context.Background(), escalation.Escalation{Reason: "tests flaky"})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Guidance != "skip the flaky test" || d.NeedsHuman {
		t.Fatalf("decision=%+v", d)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	if _, err := run(context.Background(), nil, 0, map[string]any{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}
