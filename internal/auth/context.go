package auth

import (
	"context"

	"sportai.io/internal/session"
)

type sessionContextKey struct{}
type tokenContextKey struct{}

// ContextWithSession attaches the validated session to the context.
func ContextWithSession(ctx context.Context, s session.State) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &s)
}

// SessionFromContext extracts the validated session from the context.
func SessionFromContext(ctx context.Context) (session.State, bool) {
	if ctx == nil {
		return session.State{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*session.State)
	if !ok || v == nil {
		return session.State{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Allowed reports whether the session in ctx holds perm.
func Allowed(ctx context.Context, perm string) bool {
	s, ok := SessionFromContext(ctx)
	return ok && HasPermission(s.Permissions, perm)
}
