// Package metadata copies request identity into requestcontext so services
// can stamp audit events without importing net/http.
package metadata

import (
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"lineageforge/pkg/requestcontext"
)

// ActorHeader names who triggered a run. Absent, the client IP is used.
const ActorHeader = "X-Actor"

const maxActorLength = 128

// RequestMetadata must run after chi's RequestID middleware.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimw.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
			w.Header().Set(chimw.RequestIDHeader, reqID)
		}

		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = ClientIPFromRequest(r)
		}
		if len(actor) > maxActorLength {
			actor = actor[:maxActorLength]
		}
		ctx = requestcontext.WithActor(ctx, actor)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port", or "[::1]:port" for IPv6
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
