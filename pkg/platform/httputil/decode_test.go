package httputil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Identifier string `json:"identifier" validate:"required,max=320"`
	Reason     string `json:"reasonCode"`
}

func (r *sampleRequest) Validate() error {
	r.Identifier = strings.TrimSpace(r.Identifier)
	return ValidateStruct(r)
}

func decodeSample(body string) (*sampleRequest, bool, *httptest.ResponseRecorder) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	got, ok := DecodeAndPrepare[sampleRequest](rr, req, logger, context.Background(), "")
	return got, ok, rr
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		got, ok, _ := decodeSample(`{"identifier":"  alice@example.com ","reasonCode":"LOCKED"}`)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", got.Identifier)
		assert.Equal(t, "LOCKED", got.Reason)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, ok, rr := decodeSample(`{"identifier":`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "invalid request body")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, ok, rr := decodeSample(`{"identifier":"a","password":"hunter2"}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("validation failure names the json field", func(t *testing.T) {
		_, ok, rr := decodeSample(`{"identifier":"   "}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "validation_error")
		assert.Contains(t, rr.Body.String(), "identifier failed required validation")
	})
}
