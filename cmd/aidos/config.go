// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"open-swarm/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the layered AIDOS configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (defaults < file < env)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Fprint(os.Stdout, string(data))

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: config is invalid: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory to search for aidos.yaml (default: search paths)")
	return cmd
}
