// Package testutil holds shared helpers for handler and integration tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/pkg/platform/httputil"
)

// NewJSONRequest builds a request carrying a raw JSON body. Bodies stay as
// strings so tests can send malformed payloads.
func NewJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req through handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Decode unmarshals the response body into T.
func Decode[T any](t require.TestingT, rr *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response: %s", rr.Body.String())
	return out
}

// AssertStatusAndError checks the status and the error code of an error body.
func AssertStatusAndError(t require.TestingT, rr *httptest.ResponseRecorder, status int, code string) {
	assert.Equal(t, status, rr.Code, "unexpected status code")
	body := Decode[httputil.ErrorResponse](t, rr)
	assert.Equal(t, code, body.Error, "unexpected error code")
}
