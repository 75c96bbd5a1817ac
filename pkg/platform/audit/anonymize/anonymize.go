// Package anonymize derives stable, one-way hashes from client addresses and
// free-text identifiers so audit data can be correlated without storing PII.
//
// Addresses are network-masked before hashing (IPv4 /24, IPv6 /48) and salted
// with a secret distinct from the identifier salt, so the two hash spaces cannot
// be joined against each other.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"audittrail/pkg/platform/audit"
)

// IdentifierPrefixLength is the number of hex characters of an identifier hash
// that may appear in record metadata.
const IdentifierPrefixLength = 16

// Anonymizer hashes addresses and identifiers with process-wide salts.
type Anonymizer struct {
	ipSalt         string
	identifierSalt string
}

// New constructs an Anonymizer. Salts come from configuration and are never logged.
func New(ipSalt, identifierSalt string) *Anonymizer {
	return &Anonymizer{ipSalt: ipSalt, identifierSalt: identifierSalt}
}

// HashAddress masks raw to its network prefix and returns SHA-256(masked || ipSalt).
// The output is always audit.HashSize bytes.
func (a *Anonymizer) HashAddress(raw string) []byte {
	sum := sha256.Sum256([]byte(MaskAddress(raw) + a.ipSalt))
	return sum[:]
}

// HashIdentifier normalizes id (trim, lower-case) and returns
// SHA-256(normalized || identifierSalt).
func (a *Anonymizer) HashIdentifier(id string) []byte {
	normalized := strings.ToLower(strings.TrimSpace(id))
	sum := sha256.Sum256([]byte(normalized + a.identifierSalt))
	return sum[:]
}

// IdentifierPrefix returns the truncated hex form of HashIdentifier used in metadata.
func (a *Anonymizer) IdentifierPrefix(id string) string {
	return hex.EncodeToString(a.HashIdentifier(id))[:IdentifierPrefixLength]
}

// MaskAddress zeroes the host part of an address.
//
//	203.0.113.77          -> 203.0.113.0
//	2001:db8:85a3:8d3::1  -> 2001:db8:85a3:0:0:0:0:0
//
// Anything that is neither IPv4- nor IPv6-shaped is returned unchanged.
func MaskAddress(raw string) string {
	parts := strings.Split(raw, ".")
	if len(parts) == 4 && allDigits(parts) {
		parts[3] = "0"
		return strings.Join(parts, ".")
	}

	if strings.Contains(raw, ":") {
		groups := strings.Split(raw, ":")
		if len(groups) >= 3 {
			return strings.Join(groups[:3], ":") + ":0:0:0:0:0"
		}
	}

	return raw
}

func allDigits(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i := 0; i < len(p); i++ {
			if p[i] < '0' || p[i] > '9' {
				return false
			}
		}
	}
	return true
}

// TruncateUserAgent bounds ua to audit.MaxUserAgentLength characters.
// An empty result means "absent".
func TruncateUserAgent(ua string) string {
	return audit.Truncate(ua, audit.MaxUserAgentLength)
}
