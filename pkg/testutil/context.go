package testutil

import (
	"net/http"
	"time"

	"github.com/stretchr/testify/require"

	"audittrail/pkg/platform/middleware/admin"
)

// BearerToken signs an admin token carrying role, valid for an hour.
func BearerToken(t require.TestingT, secret, role string) string {
	token, err := admin.IssueToken(secret, "test-"+role, role, time.Hour)
	require.NoError(t, err)
	return token
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
