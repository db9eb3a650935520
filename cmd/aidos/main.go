// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	cliName    = "aidos"
	cliVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "AIDOS — AI-driven orchestration core",
		Long:  "AIDOS drives an objective through task decomposition, dependency-graph planning, and bounded-concurrency agent execution.",
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the aidos version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
