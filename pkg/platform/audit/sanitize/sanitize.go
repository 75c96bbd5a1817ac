// Package sanitize bounds the metadata attached to an audit event before it
// reaches storage: keys are whitelisted, PII-looking strings are dropped, and
// the serialized form is capped at audit.MaxMetadataBytes.
package sanitize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"audittrail/pkg/platform/audit"
)

// allowedKeys is the metadata whitelist.
var allowedKeys = map[string]struct{}{
	"count":           {}, // bucket count
	"first_ts":        {}, // bucket first timestamp
	"window_start":    {}, // bucket window
	"identifier_hash": {}, // truncated identifier hash, never the raw value
	"locale":          {},
	"fieldChanged":    {},
	"fromRoleId":      {},
	"toRoleId":        {},
	"profileType":     {}, // coach, organization, member
	"reason":          {}, // deletion/action reason
	"method":          {}, // auth method (local, google, ...)
	"tokenType":       {}, // verify, reset
}

var phonePattern = regexp.MustCompile(`^\+?\d{10,}$`)

// Allowed reports whether key may appear in persisted metadata.
func Allowed(key string) bool {
	_, ok := allowedKeys[key]
	return ok
}

// Sanitize returns storage-safe metadata for raw. It never fails: input that is
// not audit.Metadata or map[string]any yields an empty mapping.
func Sanitize(raw any) audit.Metadata {
	out := audit.Metadata{}
	for _, f := range ordered(raw) {
		if !Allowed(f.Key) || f.Value == nil {
			continue
		}
		if s, ok := f.Value.(string); ok && looksLikePII(s) {
			continue
		}
		if _, err := json.Marshal(f.Value); err != nil {
			continue
		}
		out = out.Set(f.Key, f.Value)
	}
	return enforceSize(out)
}

func ordered(raw any) audit.Metadata {
	switch m := raw.(type) {
	case audit.Metadata:
		return m
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(audit.Metadata, 0, len(keys))
		for _, k := range keys {
			out = append(out, audit.Field{Key: k, Value: m[k]})
		}
		return out
	case map[string]string:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(audit.Metadata, 0, len(keys))
		for _, k := range keys {
			out = append(out, audit.Field{Key: k, Value: m[k]})
		}
		return out
	default:
		return nil
	}
}

// looksLikePII flags email addresses and phone numbers. Matching values are
// dropped outright rather than masked.
func looksLikePII(s string) bool {
	return strings.Contains(s, "@") || phonePattern.MatchString(s)
}

// enforceSize evicts trailing keys until the encoded mapping fits.
func enforceSize(m audit.Metadata) audit.Metadata {
	for len(m) > 0 && Size(m) > audit.MaxMetadataBytes {
		m = m[:len(m)-1]
	}
	return m
}

// Size is the length in bytes of m's JSON encoding.
func Size(m audit.Metadata) int {
	b, err := m.MarshalJSON()
	if err != nil {
		// Values were checked individually; treat a failure as oversized.
		return audit.MaxMetadataBytes + 1
	}
	return len(b)
}
