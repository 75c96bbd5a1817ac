package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newActionsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the audited actions",
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, a := range e.reader.Actions() {
				if _, err := fmt.Fprintln(e.out, a); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
