package metadata

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.77, 10.0.0.1"}, "10.0.0.2:443", "203.0.113.77"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 198.51.100.4 "}, "", "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "10.0.0.2:443", "198.51.100.9"},
		{"remote ipv4", nil, "192.0.2.1:51234", "192.0.2.1"},
		{"remote ipv6", nil, "[2001:db8::1]:51234", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
		{"nothing known", nil, "", UnknownAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("User-Agent", "curl/8.5.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Equal(t, "curl/8.5.0", ua)
}

func TestAuditContext(t *testing.T) {
	anon := anonymize.New("ip-salt", "identifier-salt")
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "203.0.113.77:9000"
	r.Header.Set("User-Agent", strings.Repeat("a", 400))
	r = r.WithContext(requestcontext.WithRequestID(r.Context(), "6f1c3a52-5b7e-4d0c-9f7e-2b8f4a0d9c11"))

	got := AuditContext(r, anon)

	assert.Equal(t, "6f1c3a52-5b7e-4d0c-9f7e-2b8f4a0d9c11", got.RequestID)
	assert.Equal(t, anon.HashAddress("203.0.113.0"), got.IPHash)
	assert.Len(t, got.UserAgent, audit.MaxUserAgentLength)
}
