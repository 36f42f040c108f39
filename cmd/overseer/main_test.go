package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "overseer.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestToolsCommand_FiltersByRole(t *testing.T) {
	cfg := writeConfig(t, `
version: 1
tools:
  - name: shell
    description: run shell commands
  - name: deploy
    description: push to production
    roles: [operator]
  - name: legacy
    roles: []
`)
	out, _, err := runCLI(t, "tools", "--config", cfg, "--role", "coder")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if !strings.Contains(out, "shell") {
		t.Fatalf("open tool missing from output:\n%s", out)
	}
	if strings.Contains(out, "deploy") || strings.Contains(out, "legacy") {
		t.Fatalf("restricted tool leaked into output:\n%s", out)
	}
}

func TestToolsCommand_NoRoleShowsCatalogue(t *testing.T) {
	cfg := writeConfig(t, `
version: 1
tools:
  - name: deploy
    roles: [operator]
`)
	out, _, err := runCLI(t, "tools", "--config", cfg)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if !strings.Contains(out, "deploy") || !strings.Contains(out, "roles: [operator]") {
		t.Fatalf("catalogue view wrong:\n%s", out)
	}
}

func TestRunCommand_RequiresGoal(t *testing.T) {
	_, _, err := runCLI(t, "run")
	if err == nil {
		t.Fatal("expected error without --goal")
	}
	var uerr usageError
	if !errors.As(err, &uerr) {
		t.Fatalf("err=%T want usage error", err)
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, _, err := runCLI(t, "run", "--no-such-flag")
	var uerr usageError
	if !errors.As(err, &uerr) {
		t.Fatalf("err=%v want usage error", err)
	}
}

func TestRunCommand_RequiresPlanner(t *testing.T) {
	_, _, err := runCLI(t, "run", "--goal", "ship it")
	if err == nil || !strings.Contains(err.Error(), "planner") {
		t.Fatalf("err=%v want missing-planner error", err)
	}
}

func TestStatusCommand_RequiresArchiveRoot(t *testing.T) {
	if _, _, err := runCLI(t, "status"); err == nil {
		t.Fatal("expected error without archive root")
	}
}

func TestStatusCommand_EmptyArchive(t *testing.T) {
	out, _, err := runCLI(t, "status", "--archive-root", t.TempDir())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "total 0") {
		t.Fatalf("summary missing:\n%s", out)
	}
}

func TestRunCommand_EndToEnd(t *testing.T) {
	archiveRoot := t.TempDir()
	cfg := writeConfig(t, `
version: 1
planner:
  command: ["sh", "-c", "cat >/dev/null; printf '%s' '{\"subtasks\":[{\"role\":\"coder\",\"description\":\"do it\"}]}'"]
workers:
  coder:
    command: ["sh", "-c", "cat >/dev/null; printf '%s' '{\"success\":true,\"output\":\"done\"}'"]
`)
	out, _, err := runCLI(t, "run", "--goal", "ship it", "--config", cfg, "--archive-root", archiveRoot)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "success:    true") {
		t.Fatalf("unexpected report:\n%s", out)
	}

	// The archived result should now be visible to status.
	out, _, err = runCLI(t, "status", "--archive-root", archiveRoot)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "succeeded") || !strings.Contains(out, "ship it") {
		t.Fatalf("archived goal missing from status:\n%s", out)
	}
}

func TestRunCommand_EscalatedGoalExitsNonZero(t *testing.T) {
	cfg := writeConfig(t, `
version: 1
engine:
  max_attempts: 1
planner:
  command: ["sh", "-c", "cat >/dev/null; printf '%s' '{\"subtasks\":[{\"role\":\"coder\",\"description\":\"do it\"}]}'"]
workers:
  coder:
    command: ["sh", "-c", "cat >/dev/null; printf '%s' '{\"success\":false,\"error\":\"no disk space\"}'"]
backoff:
  initial_delay_ms: 1
`)
	out, stderr, err := runCLI(t, "run", "--goal", "ship it", "--config", cfg)
	if err == nil {
		t.Fatalf("expected failure exit, got:\n%s", out)
	}
	if !strings.Contains(out, "reason:     no disk space") {
		t.Fatalf("escalation reason missing:\n%s", out)
	}
	if !strings.Contains(stderr, "HUMAN ATTENTION REQUIRED") {
		t.Fatalf("human notification missing from stderr:\n%s", stderr)
	}
}
