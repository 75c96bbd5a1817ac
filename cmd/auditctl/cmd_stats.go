package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print activity totals for the last 7 days as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := e.reader.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("marshalling stats: %w", err)
			}
			_, err = fmt.Fprintln(e.out, string(out))
			return err
		},
	}
}
