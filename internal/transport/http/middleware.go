package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"frametruth/internal/auth"
	"frametruth/internal/ratelimit"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/httputil"
	"frametruth/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestContext stamps every request with an ID and a single request-scoped
// "now". All timestamps produced while serving one request (session expiry
// checks, grant evaluation, audit records) read the same clock value.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientMetadata extracts the client IP, raw User-Agent, and a parsed device
// description and places them in the context. Audit events attach all three.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawUA := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(),
			clientIP(r), rawUA, describeDevice(rawUA))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP resolves the originating address, preferring proxy headers over
// the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr carries a port ("127.0.0.1:52114", "[::1]:52114").
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}
	return "unknown"
}

// describeDevice renders a short human-readable device string such as
// "Firefox 120.0 / Linux x86_64". Unparseable agents fall back to the raw
// header so the audit trail never loses the original value.
func describeDevice(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return rawUA
	}
	desc := name
	if version != "" {
		desc += " " + version
	}
	if os := ua.OS(); os != "" {
		desc += " / " + os
	}
	return desc
}

// RateLimit throttles a route group per client address. Must run after
// ClientMetadata so the proxy-aware IP is already resolved.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !limiter.Allow(requestcontext.ClientIP(ctx), requestcontext.Now(ctx)) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many attempts"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator resolves Bearer tokens through the auth service and injects
// the actor, session and role into the request context.
type Authenticator struct {
	auth   *auth.Service
	logger *slog.Logger
}

func NewAuthenticator(authService *auth.Service, logger *slog.Logger) *Authenticator {
	return &Authenticator{auth: authService, logger: logger}
}

// RequireAuth rejects requests without a valid Bearer token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		user, sessionID, err := a.auth.Authenticate(ctx, token)
		if err != nil {
			if a.logger != nil {
				a.logger.WarnContext(ctx, "authentication rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
			httputil.WriteError(w, err)
			return
		}

		ctx = requestcontext.WithActorID(ctx, user.ID)
		ctx = requestcontext.WithSessionID(ctx, sessionID)
		ctx = requestcontext.WithRole(ctx, user.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates admin-only endpoints. Must be mounted inside
// RequireAuth so the role is already resolved.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.Role(r.Context()) != auth.RoleAdmin {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
