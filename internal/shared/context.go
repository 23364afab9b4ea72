package shared

import "context"

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the tenant (business user) id in context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id; ok is false when absent.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	return id, ok && id > 0
}

// ContextWithActor stores the acting user label (used for created_by / converted_by).
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the acting user label or "SYSTEM".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return "SYSTEM"
}
