// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"open-swarm/internal/config"
	"open-swarm/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted session-history records",
	}
	cmd.AddCommand(newHistoryListCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved session-history records, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			dir := filepath.Join(cfg.Output.Directory, "history")
			entries, err := os.ReadDir(dir)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stdout, "no session history found")
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading history directory: %w", err)
			}

			var records []history.Record
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dir, e.Name()))
				if err != nil {
					continue
				}
				var rec history.Record
				if err := yaml.Unmarshal(data, &rec); err != nil {
					continue
				}
				records = append(records, rec)
			}

			sort.Slice(records, func(i, j int) bool {
				return records[i].UpdatedAt.After(records[j].UpdatedAt)
			})

			for _, rec := range records {
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%q\n", rec.SessionID, rec.Status, rec.UpdatedAt.Format("2006-01-02T15:04:05"), rec.Objective)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory to search for aidos.yaml (default: search paths)")
	return cmd
}
