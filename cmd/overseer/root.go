package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// usageError marks caller mistakes (bad flags, missing arguments) so main
// can exit 2 instead of the general failure code.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "overseer",
		Short:         "Goal-driven task workflow and escalation engine",
		Long:          "Overseer plans a goal into ordered subtasks, dispatches each to a role-specific worker, retries failures under a bounded ladder, and escalates what it cannot resolve.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newToolsCmd())
	return root
}
