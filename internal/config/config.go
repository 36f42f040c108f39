// Package config loads the run configuration file shared by the CLI and
// the engine: retry bounds, backoff, the tool catalogue, the recovery
// ladder and the external collaborator commands.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/attargo/overseer/internal/ladder"
	"github.com/attargo/overseer/internal/toolgate"
)

type EngineConfig struct {
	MaxAttempts     int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	IterationBudget int `json:"iteration_budget,omitempty" yaml:"iteration_budget,omitempty"`
}

// CollaboratorConfig is the argv of an external planner/worker/coordinator
// process speaking the JSON contract on stdin/stdout.
type CollaboratorConfig struct {
	Command []string `json:"command" yaml:"command"`
}

type RecoveryConfig struct {
	Ladder ladder.Ladder `json:"ladder,omitempty" yaml:"ladder,omitempty"`
}

type AggregateConfig struct {
	ResolvedCountsAsFailure bool `json:"resolved_counts_as_failure,omitempty" yaml:"resolved_counts_as_failure,omitempty"`
}

type File struct {
	Version int `json:"version" yaml:"version"`

	Engine  EngineConfig         `json:"engine,omitempty" yaml:"engine,omitempty"`
	Backoff ladder.BackoffConfig `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	Planner     CollaboratorConfig            `json:"planner,omitempty" yaml:"planner,omitempty"`
	Workers     map[string]CollaboratorConfig `json:"workers,omitempty" yaml:"workers,omitempty"`
	Coordinator CollaboratorConfig            `json:"coordinator,omitempty" yaml:"coordinator,omitempty"`

	Tools []toolgate.Tool `json:"tools,omitempty" yaml:"tools,omitempty"`

	Recovery  RecoveryConfig  `json:"recovery,omitempty" yaml:"recovery,omitempty"`
	Aggregate AggregateConfig `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`

	ArchiveRoot string `json:"archive_root,omitempty" yaml:"archive_root,omitempty"`
}

const currentVersion = 1

func Default() File {
	return File{
		Version: currentVersion,
		Engine: EngineConfig{
			MaxAttempts:     3,
			IterationBudget: 24,
		},
		Backoff: ladder.DefaultBackoffConfig(),
	}
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.Version == 0 {
		f.Version = currentVersion
	}
	if f.Engine.MaxAttempts <= 0 {
		f.Engine.MaxAttempts = 3
	}
	if f.Engine.IterationBudget <= 0 {
		f.Engine.IterationBudget = 24
	}
	if f.Backoff == (ladder.BackoffConfig{}) {
		f.Backoff = ladder.DefaultBackoffConfig()
	}
}

func (f File) Validate() error {
	if f.Version != currentVersion {
		return fmt.Errorf("config: unsupported version %d (want %d)", f.Version, currentVersion)
	}
	if f.Engine.MaxAttempts > f.Engine.IterationBudget {
		return fmt.Errorf("config: max_attempts (%d) exceeds iteration_budget (%d)",
			f.Engine.MaxAttempts, f.Engine.IterationBudget)
	}
	for role, c := range f.Workers {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("config: worker with empty role")
		}
		if len(c.Command) == 0 {
			return fmt.Errorf("config: worker %q has no command", role)
		}
	}
	seen := map[string]bool{}
	for i, t := range f.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("config: tool %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
	}
	if len(f.Recovery.Ladder.Rungs) > 0 {
		if err := f.Recovery.Ladder.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}
