// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package main

import (
	"net/url"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	statsUser  string
	statsSince string
	statsUntil string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query preference analytics",
}

func init() {
	statsCmd.PersistentFlags().StringVar(&statsUser, "user", "", "restrict to a single user ID")
	statsCmd.PersistentFlags().StringVar(&statsSince, "since", "", "lower time bound, RFC 3339")
	statsCmd.PersistentFlags().StringVar(&statsUntil, "until", "", "upper time bound, RFC 3339")

	statsCmd.AddCommand(statsEndpoint("overview", "Accept rate and volume totals"))
	statsCmd.AddCommand(statsEndpoint("tiers", "Accept behavior broken down by content tier"))
	statsCmd.AddCommand(statsEndpoint("hesitation", "Hold-time distribution before commit"))
	statsCmd.AddCommand(statsEndpoint("timeline", "Decision volume over time"))
}

// statsEndpoint builds a subcommand that fetches one analytics endpoint
// and prints the payload verbatim. The filter flags map 1:1 onto the
// API's query parameters.
func statsEndpoint(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if statsUser != "" {
				query.Set("user_id", statsUser)
			}
			if statsSince != "" {
				query.Set("since", statsSince)
			}
			if statsUntil != "" {
				query.Set("until", statsUntil)
			}

			var payload json.RawMessage
			if err := adminGet(cmd.Context(), "/api/v1/stats/"+name, query, &payload); err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}
