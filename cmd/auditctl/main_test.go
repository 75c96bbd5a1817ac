package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/query"
	"audittrail/pkg/platform/audit/signing"
	"audittrail/pkg/platform/audit/store/memory"
	"audittrail/pkg/platform/audit/writer"
	"audittrail/pkg/platform/middleware/admin"
)

const cliAdminSecret = "cli-admin-secret"

type CLISuite struct {
	suite.Suite
	now     time.Time
	records *memory.InMemoryStore
	signer  *signing.Signer
	writer  *writer.Writer
	out     *bytes.Buffer
	setups  int
	closed  int
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.records = memory.NewInMemoryStore()
	s.signer = signing.New("cli-hmac-secret")
	s.out = &bytes.Buffer{}
	s.setups, s.closed = 0, 0

	w, err := writer.New(s.records, s.signer, writer.WithLogger(logger), writer.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.writer = w
}

func (s *CLISuite) run(args ...string) error {
	setup := func(context.Context) (*env, func(), error) {
		s.setups++
		svc, err := query.New(s.records,
			query.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			query.WithClock(func() time.Time { return s.now }),
		)
		if err != nil {
			return nil, nil, err
		}
		return &env{reader: svc, signer: s.signer, out: s.out}, func() { s.closed++ }, nil
	}
	cmd := newRootCmd(setup, func() (string, error) { return cliAdminSecret, nil })
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func (s *CLISuite) write(action audit.Action, result audit.Result) {
	ok, err := s.writer.Write(context.Background(), audit.Event{
		ActorType:  audit.ActorUser,
		ActorID:    audit.Int64(7),
		Action:     action,
		Result:     result,
		TargetType: "user",
		TargetID:   audit.Int64(7),
	})
	s.Require().NoError(err)
	s.Require().True(ok)
}

func (s *CLISuite) TestActions() {
	s.Require().NoError(s.run("actions"))
	lines := strings.Split(strings.TrimSpace(s.out.String()), "\n")
	s.Len(lines, len(audit.Actions()))
	s.Equal("LOGIN_SUCCESS", lines[0])
	s.Equal(1, s.closed)
}

func (s *CLISuite) TestExport() {
	s.write(audit.ActionLoginSuccess, audit.ResultSuccess)
	s.write(audit.ActionPurged, audit.ResultSuccess)

	s.Require().NoError(s.run("export", "--action", "PURGED", "--from", "2026-03-01"))
	lines := strings.Split(strings.TrimSpace(s.out.String()), "\n")
	s.Require().Len(lines, 2)
	s.True(strings.HasPrefix(lines[0], "ID,Timestamp,"))
	s.Contains(lines[1], `"PURGED"`)
	s.Contains(lines[1], `"2026-03-10T12:00:00.000Z"`)
}

func (s *CLISuite) TestStats() {
	s.write(audit.ActionLoginSuccess, audit.ResultSuccess)
	s.write(audit.ActionLoginSuccess, audit.ResultFail)

	s.Require().NoError(s.run("stats"))
	var stats query.Stats
	s.Require().NoError(json.Unmarshal(s.out.Bytes(), &stats))
	s.Equal(int64(2), stats.Total)
	s.Equal("7 days", stats.Period)
	s.Len(stats.ByResult, 2)
}

func (s *CLISuite) TestVerify() {
	s.write(audit.ActionRoleChanged, audit.ResultSuccess)

	s.Run("intact record", func() {
		s.out.Reset()
		s.Require().NoError(s.run("verify", "--id", "1"))
		s.Equal("record 1: signature ok\n", s.out.String())
	})

	s.Run("tampered record", func() {
		rec, err := s.records.Get(context.Background(), 1)
		s.Require().NoError(err)
		forged := *rec
		forged.Result = audit.ResultFail
		_, err = s.records.Append(context.Background(), &forged)
		s.Require().NoError(err)

		err = s.run("verify", "--id", "2")
		s.Require().ErrorIs(err, ErrSignatureMismatch)
	})

	s.Run("missing record", func() {
		err := s.run("verify", "--id", "99")
		s.Require().Error(err)
		s.Contains(err.Error(), "not found")
	})

	s.Run("id is required", func() {
		s.Require().Error(s.run("verify"))
	})
}

func TestRootCmd_SetupErrorStopsCommand(t *testing.T) {
	cmd := newRootCmd(func(context.Context) (*env, func(), error) {
		return nil, nil, assert.AnError
	}, nil)
	cmd.SetArgs([]string{"actions"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	require.ErrorIs(t, cmd.ExecuteContext(context.Background()), assert.AnError)
}

func (s *CLISuite) TestToken() {
	s.Run("issues a token without database setup", func() {
		var out bytes.Buffer
		cmd := newRootCmd(func(context.Context) (*env, func(), error) {
			s.setups++
			return nil, nil, assert.AnError
		}, func() (string, error) { return cliAdminSecret, nil })
		cmd.SetArgs([]string{"token", "--role", admin.RoleAuditWriter, "--subject", "ingest-svc"})
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		s.Require().NoError(cmd.ExecuteContext(context.Background()))

		claims, err := admin.ParseToken([]byte(cliAdminSecret), strings.TrimSpace(out.String()))
		s.Require().NoError(err)
		s.Equal(admin.RoleAuditWriter, claims.Role)
		s.Equal("ingest-svc", claims.Subject)
		s.Zero(s.setups)
	})

	s.Run("unknown role", func() {
		err := s.run("token", "--role", "coach")
		s.Require().Error(err)
		s.Contains(err.Error(), "unknown role")
	})

	s.Run("non-positive ttl", func() {
		s.Require().Error(s.run("token", "--ttl", "0s"))
	})
}
