// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeffmichaeljohnson-tech/rapid-studio/internal/outbox"
)

// outboxDB switches the outbox commands to offline mode: they open the
// Badger directory directly instead of calling the running server.
// Badger holds an exclusive lock, so the server must be stopped first.
var outboxDB string

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay the durable decision outbox",
	Long: "Inspects and requeues outbox batches. By default the commands call\n" +
		"the running server's admin API; with --db they open the Badger\n" +
		"directory directly, which requires the server to be stopped.",
}

var outboxStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outbox counters and parked batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload struct {
			Stats  outbox.Stats         `json:"stats"`
			Parked []outbox.BatchRecord `json:"parked"`
		}

		if outboxDB != "" {
			ob, err := openOutbox()
			if err != nil {
				return err
			}
			defer ob.Close()
			if payload.Stats, err = ob.Stats(); err != nil {
				return fmt.Errorf("read outbox stats: %w", err)
			}
			if payload.Parked, err = ob.ParkedBatches(); err != nil {
				return fmt.Errorf("read parked batches: %w", err)
			}
		} else if err := adminGet(cmd.Context(), "/api/v1/outbox/status", nil, &payload); err != nil {
			return err
		}

		fmt.Printf("unsealed decisions: %d\n", payload.Stats.UnsealedDecisions)
		fmt.Printf("pending batches:    %d\n", payload.Stats.PendingBatches)
		fmt.Printf("parked batches:     %d\n", payload.Stats.ParkedBatches)
		fmt.Printf("delivered batches:  %d\n", payload.Stats.DeliveredBatches)

		if len(payload.Parked) == 0 {
			return nil
		}
		fmt.Println("\nparked:")
		for _, rec := range payload.Parked {
			fmt.Printf("  %s  user=%s decisions=%d attempts=%d last_error=%q\n",
				rec.Batch.BatchID, rec.Batch.UserID, len(rec.Batch.Decisions),
				rec.Attempts, rec.LastError)
		}
		return nil
	},
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Requeue all parked batches for delivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload struct {
			Replayed int `json:"replayed"`
		}

		if outboxDB != "" {
			ob, err := openOutbox()
			if err != nil {
				return err
			}
			defer ob.Close()
			if payload.Replayed, err = ob.ReplayParked(cmd.Context()); err != nil {
				return fmt.Errorf("replay parked batches: %w", err)
			}
		} else if err := adminPost(cmd.Context(), "/api/v1/outbox/replay", &payload); err != nil {
			return err
		}

		fmt.Printf("requeued %d parked batch(es)\n", payload.Replayed)
		return nil
	},
}

func openOutbox() (*outbox.Outbox, error) {
	ob, err := outbox.Open(outbox.Config{Path: outboxDB})
	if err != nil {
		return nil, fmt.Errorf("open outbox at %s (is the server still running?): %w", outboxDB, err)
	}
	return ob, nil
}

func init() {
	outboxCmd.PersistentFlags().StringVar(&outboxDB, "db", "", "open this outbox directory directly instead of calling the server")
	outboxCmd.AddCommand(outboxStatusCmd)
	outboxCmd.AddCommand(outboxReplayCmd)
}
