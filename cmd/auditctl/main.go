// Command auditctl reads the audit trail from the database and issues
// bearer tokens for the HTTP surfaces.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"audittrail/internal/platform/config"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/postgres"
	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/query"
	"audittrail/pkg/platform/audit/signing"
	auditpg "audittrail/pkg/platform/audit/store/postgres"
)

// Reader is the part of the query service the commands use.
type Reader interface {
	Record(ctx context.Context, id int64) (*audit.Record, error)
	Actions() []audit.Action
	Stats(ctx context.Context) (*query.Stats, error)
	ExportCSV(ctx context.Context, f query.Filter) (string, error)
}

// env is what every subcommand runs against.
type env struct {
	reader Reader
	signer *signing.Signer
	out    io.Writer
}

// connect opens the configured database and builds the read side.
func connect(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc, err := query.New(auditpg.New(db), query.WithLogger(log))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &env{reader: svc, signer: signing.New(cfg.HMACSecret), out: os.Stdout}, func() { _ = db.Close() }, nil
}

func newRootCmd(setup func(ctx context.Context) (*env, func(), error), secret func() (string, error)) *cobra.Command {
	e := &env{}
	cleanup := func() {}

	root := &cobra.Command{
		Use:          "auditctl",
		Short:        "Inspect and verify the audit trail",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			got, done, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			*e = *got
			cleanup = done
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			cleanup()
		},
	}

	root.AddCommand(newExportCmd(e))
	root.AddCommand(newStatsCmd(e))
	root.AddCommand(newVerifyCmd(e))
	root.AddCommand(newActionsCmd(e))
	root.AddCommand(newTokenCmd(secret))
	return root
}

func main() {
	if err := newRootCmd(connect, adminSecret).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
