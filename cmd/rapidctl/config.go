// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with engine configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate configuration from the current environment",
	Long: "Loads configuration exactly as the server would (defaults, optional\n" +
		"YAML file, environment variables) and reports the effective values.\n" +
		"Exits non-zero when validation fails, so it can gate deployments.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Println("configuration OK")
		fmt.Printf("  listen:     %s (%s)\n", cfg.Server.Addr(), cfg.Server.Environment)
		fmt.Printf("  auth mode:  %s\n", cfg.Security.AuthMode)
		fmt.Printf("  supplier:   %s\n", cfg.Supplier.URL)
		fmt.Printf("  consumer:   %s\n", cfg.Rating.URL)
		fmt.Printf("  outbox:     %s\n", cfg.Outbox.Path)
		fmt.Printf("  analytics:  %v\n", cfg.Analytics.Enabled)
		if cfg.NATS.Enabled {
			fmt.Printf("  nats:       %s\n", cfg.NATS.URL)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}
