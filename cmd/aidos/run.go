// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"open-swarm/internal/config"
	"open-swarm/internal/orchestrator"
	"open-swarm/internal/subprocess"
	"open-swarm/pkg/types"
)

func newRunCmd() *cobra.Command {
	var configDir string
	var mock bool

	cmd := &cobra.Command{
		Use:   "run <objective>",
		Short: "Run an objective through decomposition, planning, and execution to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if cfg.Execution.Backend == "temporal" {
				return runTemporal(cmd.Context(), cfg, args[0], mock)
			}

			opts := orchestrator.DefaultOptions()
			opts.MaxConcurrentAgents = cfg.Agents.MaxConcurrent
			opts.MaxTotalTokens = cfg.Budget.MaxTotalTokens
			opts.MaxSessionDurationMs = cfg.Budget.MaxSessionDurationMs
			opts.OutputDir = cfg.Output.Directory
			if mock {
				opts.BackendFactory = func(id string, role types.AgentRole) subprocess.Agent {
					return subprocess.NewMockAgent(id, 0)
				}
			} else {
				opts.BackendFactory = func(id string, role types.AgentRole) subprocess.Agent {
					return subprocess.NewProcessAgent(id, subprocess.DefaultProcessConfig())
				}
			}

			o := orchestrator.New(opts)
			unsubscribe := o.PhaseEvents().Subscribe(func(e types.PhaseEvent) {
				fmt.Fprintf(os.Stdout, "phase: %s -> %s\n", e.From, e.To)
			})
			defer unsubscribe()

			ctx := context.Background()
			if err := o.StartSession(ctx, args[0]); err != nil {
				return fmt.Errorf("session failed: %w", err)
			}

			sess := o.Session()
			fmt.Fprintf(os.Stdout, "session %s finished with status %s\n", sess.ID, sess.Status)
			for _, t := range o.Tasks() {
				fmt.Fprintf(os.Stdout, "  [%s] %s: %s\n", t.Status, t.ID, t.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory to search for aidos.yaml (default: search paths)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use the in-memory mock agent backend instead of spawning the opencode CLI")
	return cmd
}
