package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/platform/audit/bucket"
	"audittrail/pkg/platform/audit/mocks"
	"audittrail/pkg/platform/audit/recorder"
	"audittrail/pkg/platform/audit/signing"
	"audittrail/pkg/platform/audit/store/memory"
	"audittrail/pkg/platform/audit/writer"
	"audittrail/pkg/platform/middleware/admin"
	"audittrail/pkg/platform/middleware/request"
	"audittrail/pkg/testutil"
)

const (
	jwtSecret = "ingest-jwt-secret"
	requestID = "0b7e6a55-8f0e-4a58-9d0c-2f3f8bd5a0a1"
)

// =============================================================================
// Ingest Handler Test Suite
// =============================================================================
// Justification: the ingest surface is where forwarded request values become
// the audit request context. These tests run the real write path over
// in-memory stores.

type IngestSuite struct {
	suite.Suite
	now     time.Time
	anon    *anonymize.Anonymizer
	records *memory.InMemoryStore
	buckets *memory.InMemoryBucketStore
	router  chi.Router
	token   string
}

func TestIngestSuite(t *testing.T) {
	suite.Run(t, new(IngestSuite))
}

func newRouter(h *Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Route("/internal/audit", func(r chi.Router) {
		r.Use(admin.RequireRole(jwtSecret, logger, admin.RoleAuditWriter))
		h.Register(r)
	})
	return r
}

func (s *IngestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2025, 3, 14, 14, 7, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.anon = anonymize.New("ip-salt", "identifier-salt")
	s.records = memory.NewInMemoryStore()
	s.buckets = memory.NewInMemoryBucketStore()

	w, err := writer.New(s.records, signing.New("hmac-secret"), writer.WithLogger(logger), writer.WithClock(clock))
	s.Require().NoError(err)
	b, err := bucket.New(s.buckets, s.anon, bucket.WithLogger(logger), bucket.WithClock(clock))
	s.Require().NoError(err)
	rec, err := recorder.New(w, b, s.anon)
	s.Require().NoError(err)

	s.router = newRouter(New(w, rec, s.anon, logger), logger)
	s.token = testutil.BearerToken(s.T(), jwtSecret, admin.RoleAuditWriter)
}

func (s *IngestSuite) post(path, body string) *httptest.ResponseRecorder {
	req := testutil.WithBearer(testutil.NewJSONRequest(http.MethodPost, path, body), s.token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("X-Forwarded-For", "203.0.113.77, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	return testutil.DoRequest(s.router, req)
}

func (s *IngestSuite) TestEvent_Recorded() {
	rr := s.post("/internal/audit/events", `{
		"actorType": "admin",
		"actorId": 9,
		"action": "ROLE_CHANGED",
		"result": "success",
		"targetType": "user",
		"targetId": 42,
		"metadata": {"fromRoleId": 1, "toRoleId": 3, "email": "bob@example.com"}
	}`)
	s.Require().Equal(http.StatusAccepted, rr.Code)
	s.JSONEq(`{"written":true}`, rr.Body.String())

	got, err := s.records.Get(context.Background(), 1)
	s.Require().NoError(err)
	s.Equal(audit.ActionRoleChanged, got.Action)
	s.Equal(requestID, got.RequestID)
	s.Equal(s.anon.HashAddress("203.0.113.0"), got.IPHash)
	s.Equal("Mozilla/5.0", got.UserAgent)
	s.Equal([]string{"fromRoleId", "toRoleId"}, got.Meta.Keys())
	s.Equal(s.now, got.Timestamp)
}

func (s *IngestSuite) TestEvent_Rejected() {
	cases := map[string]string{
		"unknown action":      `{"actorType":"user","action":"LOGOUT","result":"success"}`,
		"unknown result":      `{"actorType":"user","action":"LOGIN_SUCCESS","result":"maybe"}`,
		"unknown actor type":  `{"actorType":"robot","action":"LOGIN_SUCCESS","result":"success"}`,
		"missing action":      `{"actorType":"user","result":"success"}`,
		"non-positive target": `{"actorType":"user","action":"LOGIN_SUCCESS","result":"success","targetId":0}`,
		"unknown field":       `{"actorType":"user","action":"LOGIN_SUCCESS","result":"success","ts":"2020-01-01"}`,
	}
	for name, body := range cases {
		rr := s.post("/internal/audit/events", body)
		s.Equal(http.StatusBadRequest, rr.Code, name)
	}
	n, err := s.records.Count(context.Background(), audit.Criteria{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *IngestSuite) TestLoginFailure_BucketsAndRecords() {
	for range 2 {
		rr := s.post("/internal/audit/login-failures", `{"identifier":"alice@example.com"}`)
		s.Require().Equal(http.StatusNoContent, rr.Code)
	}

	buckets := s.buckets.All()
	s.Require().Len(buckets, 1)
	s.Equal(int64(2), buckets[0].Count)
	s.Equal(s.anon.HashIdentifier("alice@example.com"), buckets[0].Key.IdentifierHash)

	recs, err := s.records.Find(context.Background(), audit.Criteria{})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(recorder.DefaultLoginFailReason, recs[0].ReasonCode)
	for _, rec := range recs {
		v, _ := rec.Meta.Get("identifier_hash")
		s.NotContains(v, "@")
	}
}

func (s *IngestSuite) TestRoleRequired() {
	s.token = testutil.BearerToken(s.T(), jwtSecret, admin.RoleSuperAdmin)
	rr := s.post("/internal/audit/events", `{"actorType":"user","action":"LOGIN_SUCCESS","result":"success"}`)
	s.Equal(http.StatusForbidden, rr.Code)
}

func TestEvent_FailClosedIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("pq: too many connections"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := writer.New(store, signing.New("hmac-secret"), writer.WithLogger(logger), writer.WithFailOpen(false))
	require.NoError(t, err)
	router := newRouter(New(w, nil, anonymize.New("a", "b"), logger), logger)

	req := httptest.NewRequest(http.MethodPost, "/internal/audit/events",
		strings.NewReader(`{"actorType":"system","action":"PURGED","result":"success"}`))
	req.Header.Set("Authorization", "Bearer "+testutil.BearerToken(t, jwtSecret, admin.RoleAuditWriter))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"error":"service_unavailable","error_description":"audit write failed"}`, rr.Body.String())
}
