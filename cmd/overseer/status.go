package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attargo/overseer/internal/archive"
	"github.com/attargo/overseer/internal/engine"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath  string
		archiveRoot string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize archived goal results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if archiveRoot != "" {
				cfg.ArchiveRoot = archiveRoot
			}
			if cfg.ArchiveRoot == "" {
				return fmt.Errorf("no archive root configured; pass --archive-root or set archive_root")
			}
			store, err := archive.NewStore(cfg.ArchiveRoot)
			if err != nil {
				return err
			}

			paths, err := store.List("goals/*/result.json")
			if err != nil {
				return err
			}
			results := make([]engine.WorkflowResult, 0, len(paths))
			for _, p := range paths {
				var res engine.WorkflowResult
				if err := store.GetJSON(p, &res); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", p, err)
					continue
				}
				results = append(results, res)
			}

			out := cmd.OutOrStdout()
			for _, res := range results {
				state := "failed"
				switch {
				case res.Success:
					state = "succeeded"
				case res.Resolved:
					state = "resolved"
				case res.Escalated:
					state = "escalated"
				}
				fmt.Fprintf(out, "%s  %-9s  %s\n", res.GoalID, state, res.Goal)
				if res.Escalated && res.EscalationReason != "" {
					fmt.Fprintf(out, "  reason: %s\n", res.EscalationReason)
				}
			}
			sum := engine.Summarize(results, engine.SummaryOptions{
				ResolvedCountsAsFailure: cfg.Aggregate.ResolvedCountsAsFailure,
			})
			fmt.Fprintf(out, "total %d: %d succeeded, %d failed, %d resolved\n",
				len(results), sum.Succeeded, sum.Failed, sum.Resolved)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "run configuration file (YAML)")
	cmd.Flags().StringVar(&archiveRoot, "archive-root", "", "audit archive directory (overrides config)")
	return cmd
}
