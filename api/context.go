package api

import (
	"context"

	"github.com/avenlane/jobqueue/tenant"
)

type contextKey int

const (
	tenantContextKey contextKey = iota
	traceIDContextKey
)

func withTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, t)
}

// TenantFromContext returns the authenticated tenant attached by the
// auth middleware, or nil if the request reached the handler
// unauthenticated.
func TenantFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*tenant.Tenant)
	return t
}

func withTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, id)
}

// TraceIDFromContext returns the request's correlation id, as set by
// correlationIDMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDContextKey).(string)
	return id
}
