package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/attargo/overseer/internal/archive"
	"github.com/attargo/overseer/internal/collab"
	"github.com/attargo/overseer/internal/config"
	"github.com/attargo/overseer/internal/engine"
	"github.com/attargo/overseer/internal/escalation"
	"github.com/attargo/overseer/internal/logging"
	"github.com/attargo/overseer/internal/task"
)

func newRunCmd() *cobra.Command {
	var (
		goal        string
		priority    string
		configPath  string
		archiveRoot string
		debug       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a goal and drive it to completion or escalation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(goal) == "" {
				return usageErrorf("--goal is required")
			}
			prio, err := task.ParsePriority(priority)
			if err != nil {
				return usageError{err: err}
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if archiveRoot != "" {
				cfg.ArchiveRoot = archiveRoot
			}

			log, err := logging.New(debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			eng, chain, err := buildEngine(cfg, log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			res := eng.ExecuteGoal(cmd.Context(), goal, prio)
			chain.Flush()
			printResult(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("goal did not succeed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "goal description to execute")
	cmd.Flags().StringVarP(&priority, "priority", "p", "medium", "goal priority (low|medium|high|critical)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "run configuration file (YAML)")
	cmd.Flags().StringVar(&archiveRoot, "archive-root", "", "audit archive directory (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func loadConfig(path string) (config.File, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildEngine wires collaborators from the config: external planner and
// workers, the escalation chain with a stderr human notifier, and the
// best-effort archive.
func buildEngine(cfg config.File, log *zap.Logger, stderr io.Writer) (*engine.Engine, *escalation.Chain, error) {
	if len(cfg.Planner.Command) == 0 {
		return nil, nil, fmt.Errorf("config has no planner command; nothing can break goals down")
	}
	if len(cfg.Workers) == 0 {
		return nil, nil, fmt.Errorf("config has no workers; nothing can execute subtasks")
	}

	registry := engine.NewRegistry()
	for role, wc := range cfg.Workers {
		if err := registry.Register(role, collab.Worker{Argv: wc.Command}); err != nil {
			return nil, nil, err
		}
	}

	var coordinator escalation.Coordinator
	if len(cfg.Coordinator.Command) > 0 {
		coordinator = collab.Coordinator{Argv: cfg.Coordinator.Command}
	}
	chain := escalation.NewChain(coordinator, escalation.WithLogger(log))
	chain.Subscribe(stderrNotifier{w: stderr})

	var store *archive.Store
	if cfg.ArchiveRoot != "" {
		s, err := archive.NewStore(cfg.ArchiveRoot)
		if err != nil {
			// Best-effort persistence: a broken archive must never stop
			// a goal from running.
			log.Warn("archive unavailable", zap.Error(err))
		} else {
			store = s
		}
	}

	eng, err := engine.New(engine.Config{
		Planner:         collab.Planner{Argv: cfg.Planner.Command},
		Workers:         registry,
		Escalator:       chain,
		Archive:         store,
		Logger:          log,
		MaxAttempts:     cfg.Engine.MaxAttempts,
		IterationBudget: cfg.Engine.IterationBudget,
		Backoff:         cfg.Backoff,
	})
	if err != nil {
		return nil, nil, err
	}
	return eng, chain, nil
}

type stderrNotifier struct {
	w io.Writer
}

func (n stderrNotifier) Notify(reason string, ref escalation.Reference) {
	fmt.Fprintf(n.w, "HUMAN ATTENTION REQUIRED [%s %s]: %s\n", ref.Kind, ref.ID, reason)
}

func printResult(w io.Writer, res engine.WorkflowResult) {
	fmt.Fprintf(w, "goal:       %s\n", res.Goal)
	fmt.Fprintf(w, "goal id:    %s\n", res.GoalID)
	fmt.Fprintf(w, "success:    %v\n", res.Success)
	fmt.Fprintf(w, "escalated:  %v\n", res.Escalated)
	if res.Escalated {
		fmt.Fprintf(w, "reason:     %s\n", res.EscalationReason)
	}
	if res.Resolved {
		fmt.Fprintf(w, "resolved:   with decision: %s\n", res.Decision)
	}
	fmt.Fprintf(w, "iterations: %d\n", res.Iterations)
	fmt.Fprintf(w, "elapsed:    %s\n", res.Elapsed().Round(time.Millisecond))

	roles := make([]string, 0, len(res.Records))
	for role := range res.Records {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Fprintf(w, "%s:\n", role)
		for _, rec := range res.Records[role] {
			status := "ok"
			detail := rec.Result.Output
			if !rec.Result.Success {
				status = "fail"
				detail = rec.Result.Error
				if rec.Fault {
					status = "fault"
				}
			}
			fmt.Fprintf(w, "  [%s attempt %d] %s: %s\n", status, rec.Attempt, rec.Subtask.Description, firstLine(detail))
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
