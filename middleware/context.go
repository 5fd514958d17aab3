package middleware

import (
	"context"

	"github.com/mtgscribe/gateway/models"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
)

// RequestIDFromContext returns the correlation ID attached by
// RequestID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func withPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the resolved principal, or nil for an
// anonymous request.
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalKey).(*models.Principal)
	return p
}

// EffectiveTier returns the caller's tier, defaulting to anonymous when
// no session was resolved.
func EffectiveTier(ctx context.Context) models.Tier {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Tier
	}
	return models.TierAnonymous
}
