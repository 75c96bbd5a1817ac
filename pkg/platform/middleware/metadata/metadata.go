// Package metadata extracts client address and user agent from inbound
// requests and turns them into the audit request context.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/anonymize"
	"audittrail/pkg/requestcontext"
)

// UnknownAddress is used when no client address can be determined.
const UnknownAddress = "0.0.0.0"

// ClientMetadata stores the client IP and User-Agent in the context. Apply
// it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the client address behind proxies: first hop
// of X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if addr := r.RemoteAddr; addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}

	return UnknownAddress
}

// AuditContext builds the per-request audit context. The raw address is
// hashed here and never leaves this function.
func AuditContext(r *http.Request, anon *anonymize.Anonymizer) audit.RequestContext {
	ctx := r.Context()
	ip := requestcontext.ClientIP(ctx)
	if ip == "" {
		ip = ClientIPFromRequest(r)
	}
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		ua = r.Header.Get("User-Agent")
	}
	return audit.RequestContext{
		RequestID: requestcontext.RequestID(ctx),
		IPHash:    anon.HashAddress(ip),
		UserAgent: anonymize.TruncateUserAgent(ua),
	}
}
