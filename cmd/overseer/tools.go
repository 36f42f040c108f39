package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attargo/overseer/internal/toolgate"
)

func newToolsCmd() *cobra.Command {
	var (
		configPath string
		role       string
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalogue as a worker role would see it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tools := cfg.Tools
			if role != "" {
				tools = toolgate.Filter(role, tools)
			}
			if len(tools) == 0 {
				fmt.Fprintln(out, "no tools available")
				return nil
			}
			for _, t := range tools {
				scope := "all roles"
				switch {
				case t.Roles != nil && len(t.Roles) == 0:
					scope = "disabled"
				case t.Roles != nil:
					scope = fmt.Sprintf("roles: %v", t.Roles)
				}
				fmt.Fprintf(out, "%-20s %s (%s)\n", t.Name, t.Description, scope)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "run configuration file (YAML)")
	cmd.Flags().StringVarP(&role, "role", "r", "", "filter the catalogue to what this role may use")
	return cmd
}
