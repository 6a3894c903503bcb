// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Values are set by transport middleware and consumed by services. Keeping
// this package free of net/http lets services import only what they need.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "frametruth/pkg/domain"
)

type (
	actorIDKey     struct{}
	sessionIDKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	deviceKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	roleKey        struct{}
)

// ActorID retrieves the authenticated actor from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.UserID {
	if actor, ok := ctx.Value(actorIDKey{}).(id.UserID); ok {
		return actor
	}
	return id.UserID{}
}

// WithActorID injects an actor ID into the context.
func WithActorID(ctx context.Context, actor id.UserID) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actor)
}

// SessionID retrieves the session ID from the context.
func SessionID(ctx context.Context) id.SessionID {
	if sid, ok := ctx.Value(sessionIDKey{}).(id.SessionID); ok {
		return sid
	}
	return id.SessionID{}
}

// WithSessionID injects a session ID into the context.
func WithSessionID(ctx context.Context, sid id.SessionID) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sid)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// Device retrieves the parsed device description ("Firefox 120 / Linux") from
// the context. Set by the client-metadata middleware; attached to audit events.
func Device(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey{}).(string); ok {
		return d
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and the parsed device
// description into a context. Useful for service unit tests that don't run the
// full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return context.WithValue(ctx, deviceKey{}, device)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Role retrieves the authenticated actor's role from the context.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey{}).(string); ok {
		return role
	}
	return ""
}

// WithRole injects the actor's role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI). Grant expiry is always
// evaluated against this clock so tests can pin time without sleeping.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
