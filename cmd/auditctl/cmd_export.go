package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"audittrail/pkg/platform/audit/query"
)

// filterFlags mirror the admin list query parameters.
var filterFlags = []struct {
	flag, param, usage string
}{
	{"from", "from", "range start (RFC 3339 or YYYY-MM-DD)"},
	{"to", "to", "range end; a bare date includes the whole day"},
	{"action", "action", "action, e.g. LOGIN_FAIL_BUCKETED"},
	{"result", "result", "success or fail"},
	{"actor-type", "actorType", "user, admin, system or anonymous"},
	{"actor-id", "actorId", "actor id"},
	{"target-type", "targetType", "target type"},
	{"target-id", "targetId", "target id"},
	{"request-id", "requestId", "request correlation id"},
}

func newExportCmd(e *env) *cobra.Command {
	values := make(map[string]*string, len(filterFlags))
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching records as CSV",
		Long: `Export records as CSV, most recent first. The range defaults to the last
7 days, is capped at 90 days, and at most 10000 rows are written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for _, f := range filterFlags {
				if v := *values[f.flag]; v != "" {
					q.Set(f.param, v)
				}
			}

			csv, err := e.reader.ExportCSV(cmd.Context(), query.ParseFilter(q))
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprintln(e.out, csv)
				return err
			}
			if err := os.WriteFile(output, []byte(csv), 0o600); err != nil {
				return fmt.Errorf("writing export file: %w", err)
			}
			return nil
		},
	}

	for _, f := range filterFlags {
		values[f.flag] = cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
