package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audittrail/internal/platform/config"
	"audittrail/pkg/platform/middleware/admin"
)

// newTokenCmd mints a bearer token for the admin or ingest surface. It needs
// only the signing secret, so it skips the database setup.
func newTokenCmd(secret func() (string, error)) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if role != admin.RoleSuperAdmin && role != admin.RoleAuditWriter {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}
			key, err := secret()
			if err != nil {
				return err
			}
			token, err := admin.IssueToken(key, subject, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "auditctl", "token subject")
	cmd.Flags().StringVar(&role, "role", admin.RoleSuperAdmin, "super_admin or audit_writer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// adminSecret reads the admin signing secret from configuration.
func adminSecret() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if err := cfg.RequireAdmin(); err != nil {
		return "", err
	}
	return cfg.AdminJWTSecret, nil
}
