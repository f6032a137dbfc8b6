// Package reqctx carries request-scoped ambient state: the resolved tenant,
// the acting user, request metadata, and locale/timezone preferences. Values
// are threaded through context.Context rather than process globals so that
// concurrent requests never observe each other's bindings.
package reqctx

import (
	"context"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

type ctxKey int

const (
	tenantKey ctxKey = iota + 1
	actorKey
	requestMetaKey
	localeKey
	timezoneKey
)

// Source records which resolution step produced the tenant binding.
type Source string

const (
	SourceHeader    Source = "header"
	SourceSubdomain Source = "subdomain"
	SourceUser      Source = "user-affiliation"
	SourceNone      Source = "none"
)

// Binding is the per-request tenant resolution outcome. It is created at most
// once per request and never mutated afterwards.
type Binding struct {
	Tenant domain.Tenant
	Source Source
}

// WithTenant binds the resolved tenant into the context. The binding is
// write-once: if the context already carries one, it is returned unchanged.
func WithTenant(ctx context.Context, b Binding) context.Context {
	if _, ok := TenantBinding(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, b)
}

// TenantBinding returns the tenant binding and whether one exists.
func TenantBinding(ctx context.Context) (Binding, bool) {
	b, ok := ctx.Value(tenantKey).(Binding)
	return b, ok
}

// Tenant returns the bound tenant, or ErrTenantRequired when the request
// resolved to no tenant. Callers with a hard tenant requirement use this.
func Tenant(ctx context.Context) (domain.Tenant, error) {
	b, ok := ctx.Value(tenantKey).(Binding)
	if !ok || b.Source == SourceNone {
		return domain.Tenant{}, domain.ErrTenantRequired
	}
	return b.Tenant, nil
}

// TenantID returns the bound tenant id, or "" when no tenant is bound.
func TenantID(ctx context.Context) string {
	b, ok := ctx.Value(tenantKey).(Binding)
	if !ok || b.Source == SourceNone {
		return ""
	}
	return b.Tenant.ID
}

// WithActor binds the acting user id. System and unauthenticated requests
// carry none.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// Actor returns the acting user id, or "" for system actions.
func Actor(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}

// RequestMeta is the HTTP request metadata stamped onto audit records.
// Non-request-triggered events carry a zero value.
type RequestMeta struct {
	URL       string
	IPAddress string
	UserAgent string
	RequestID string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

func Meta(ctx context.Context) RequestMeta {
	v, _ := ctx.Value(requestMetaKey).(RequestMeta)
	return v
}

func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey, locale)
}

func Locale(ctx context.Context) string {
	v, _ := ctx.Value(localeKey).(string)
	return v
}

func WithTimezone(ctx context.Context, tz string) context.Context {
	return context.WithValue(ctx, timezoneKey, tz)
}

func Timezone(ctx context.Context) string {
	v, _ := ctx.Value(timezoneKey).(string)
	return v
}
