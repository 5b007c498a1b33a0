// Package requestcontext carries request-scoped values the domain layer
// reads back out: the clock used for time-sensitive decisions and client
// metadata captured by middleware for audit labels.
package requestcontext

import (
	"context"
	"time"
)

type (
	clockKey      struct{}
	actorLabelKey struct{}
	userAgentKey  struct{}
	remoteIPKey   struct{}
)

// Clock returns the current time. Injected per request so expiry decisions
// are deterministic in tests; issuance and validation must read the same
// source.
type Clock func() time.Time

// WithClock installs a clock into the context.
func WithClock(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, clock)
}

// WithFixedTime installs a clock that always returns t. Test helper.
func WithFixedTime(ctx context.Context, t time.Time) context.Context {
	return WithClock(ctx, func() time.Time { return t })
}

// Now returns the context clock's current time, or wall-clock time when no
// clock was installed.
func Now(ctx context.Context) time.Time {
	if clock, ok := ctx.Value(clockKey{}).(Clock); ok && clock != nil {
		return clock()
	}
	return time.Now()
}

// WithActorLabel records the responder's self-identification, free text
// like "Paramedic ID #27491". Responders are anonymous by default; the
// label is whatever they chose to type.
func WithActorLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, actorLabelKey{}, label)
}

// ActorLabel returns the responder's self-identification, or "".
func ActorLabel(ctx context.Context) string {
	if label, ok := ctx.Value(actorLabelKey{}).(string); ok {
		return label
	}
	return ""
}

// WithUserAgent records the client's User-Agent summary.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// UserAgent returns the recorded User-Agent summary, or "".
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithRemoteIP records the client's remote address.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

// RemoteIP returns the recorded remote address, or "".
func RemoteIP(ctx context.Context) string {
	if ip, ok := ctx.Value(remoteIPKey{}).(string); ok {
		return ip
	}
	return ""
}
