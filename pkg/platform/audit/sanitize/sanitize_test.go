package sanitize

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/pkg/platform/audit"
)

func TestSanitize_Whitelist(t *testing.T) {
	got := Sanitize(audit.Meta(
		"locale", "de-DE",
		"password", "hunter2",
		"method", "local",
		"email", "not-an-email-but-key-is-blocked",
		"toRoleId", 3,
	))

	assert.Equal(t, []string{"locale", "method", "toRoleId"}, got.Keys())
	for _, k := range got.Keys() {
		assert.True(t, Allowed(k), "key %q must be whitelisted", k)
	}
}

func TestSanitize_DropsPII(t *testing.T) {
	cases := []struct {
		name  string
		value any
		kept  bool
	}{
		{"email-like string", "alice@example.com", false},
		{"bare at sign", "@", false},
		{"phone with plus", "+4915112345678", false},
		{"phone digits only", "0123456789", false},
		{"nine digits is not a phone", "123456789", true},
		{"digits with separators kept", "012-345-6789", true},
		{"numeric value is not a string", 1234567890123, true},
		{"plain reason", "user_request", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(audit.Meta("reason", tc.value))
			_, ok := got.Get("reason")
			assert.Equal(t, tc.kept, ok)
		})
	}
}

func TestSanitize_NonObjectInput(t *testing.T) {
	for _, raw := range []any{nil, "string", 42, []string{"a"}, struct{ Locale string }{"en"}} {
		got := Sanitize(raw)
		require.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestSanitize_MapInputIsOrderedByKey(t *testing.T) {
	got := Sanitize(map[string]any{
		"tokenType": "reset",
		"locale":    "en",
		"count":     2,
	})
	assert.Equal(t, []string{"count", "locale", "tokenType"}, got.Keys())
}

func TestSanitize_DropsUnencodableValues(t *testing.T) {
	got := Sanitize(audit.Meta(
		"count", math.NaN(),
		"fieldChanged", make(chan int),
		"locale", "en",
	))
	assert.Equal(t, []string{"locale"}, got.Keys())
}

func TestSanitize_SizeCeiling(t *testing.T) {
	t.Run("evicts from the end until it fits", func(t *testing.T) {
		big := strings.Repeat("x", 900)
		got := Sanitize(audit.Meta(
			"locale", "en",
			"reason", big,
			"fieldChanged", big,
			"profileType", big,
		))

		assert.LessOrEqual(t, Size(got), audit.MaxMetadataBytes)
		assert.Equal(t, []string{"locale", "reason", "fieldChanged"}, got.Keys())
	})

	t.Run("single oversized value empties the mapping", func(t *testing.T) {
		got := Sanitize(audit.Meta("reason", strings.Repeat("y", 5000)))
		assert.Empty(t, got)
		assert.LessOrEqual(t, Size(got), audit.MaxMetadataBytes)
	})

	t.Run("arbitrary input never exceeds the ceiling", func(t *testing.T) {
		raw := map[string]any{}
		for k := range allowedKeys {
			raw[k] = strings.Repeat("z", 400)
		}
		assert.LessOrEqual(t, Size(Sanitize(raw)), audit.MaxMetadataBytes)
	})
}
