// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

// Command rapidctl is the operator CLI for a running engine instance.
// It talks to the admin HTTP API, so it needs the same X-Admin-Key the
// server was started with:
//
//	rapidctl --server http://feed-host:8484 --admin-key $ADMIN_KEY outbox status
//	rapidctl outbox replay
//	rapidctl stats overview --since 2026-08-01T00:00:00Z
//	rapidctl config check
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	adminKey    string
	httpTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "rapidctl",
	Short:         "Operator CLI for the Rapid Studio feed engine",
	Long:          "rapidctl inspects and drives a running feed engine through its admin HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8484", "base URL of the engine's HTTP API")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("ADMIN_KEY"), "operator key for admin endpoints (defaults to $ADMIN_KEY)")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "timeout", 15*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
