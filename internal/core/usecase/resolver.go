package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
	"github.com/atvirokodosprendimai/erpcore/internal/core/reqctx"
)

// ResolveRequest carries the raw inputs a transport layer extracts from one
// inbound request. UserTenantID comes from the authenticated user's claims
// and is empty for unauthenticated requests.
type ResolveRequest struct {
	HeaderTenantID string
	Host           string
	UserTenantID   string
}

// TenantResolver derives the owning tenant of a request from an ordered list
// of sources: explicit header, subdomain routing key, acting-user
// affiliation. First match wins; a miss on one source falls through to the
// next. A store failure never falls through.
type TenantResolver struct {
	tenants  ports.TenantRepository
	switcher ports.SchemaSwitcher
	log      *zap.Logger
}

func NewTenantResolver(tenants ports.TenantRepository, switcher ports.SchemaSwitcher, log *zap.Logger) *TenantResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &TenantResolver{tenants: tenants, switcher: switcher, log: log}
}

// Resolve runs the source chain and, on a match, returns the binding and a
// context with the tenant published into it. With no match it returns a
// SourceNone binding and a nil error: an absent tenant only becomes an error
// at the first operation that requires one.
func (r *TenantResolver) Resolve(ctx context.Context, req ResolveRequest) (context.Context, reqctx.Binding, error) {
	binding, err := r.resolve(ctx, req)
	if err != nil {
		return ctx, reqctx.Binding{}, err
	}

	if binding.Source == reqctx.SourceNone {
		return reqctx.WithTenant(ctx, binding), binding, nil
	}

	ctx = reqctx.WithTenant(ctx, binding)

	if binding.Tenant.Isolation == domain.IsolationSchema && binding.Tenant.SchemaName != "" {
		switched, err := r.switcher.Use(ctx, binding.Tenant.SchemaName)
		if err != nil {
			return ctx, reqctx.Binding{}, fmt.Errorf("switch schema for tenant %s: %w", binding.Tenant.ID, err)
		}
		ctx = switched
	}

	return ctx, binding, nil
}

func (r *TenantResolver) resolve(ctx context.Context, req ResolveRequest) (reqctx.Binding, error) {
	// Explicit header: the caller asserted identity, so no status filter.
	// An unknown id is not an error here, it just falls through.
	if id := strings.TrimSpace(req.HeaderTenantID); id != "" {
		tenant, err := r.tenants.FindByID(ctx, id)
		switch {
		case err == nil:
			if !tenant.IsActive() {
				r.log.Warn("header resolution matched non-active tenant",
					zap.String("tenant_id", tenant.ID),
					zap.String("status", string(tenant.Status)))
			}
			return reqctx.Binding{Tenant: tenant, Source: reqctx.SourceHeader}, nil
		case errors.Is(err, domain.ErrTenantNotFound):
			// fall through
		default:
			return reqctx.Binding{}, fmt.Errorf("tenant lookup by id: %w", err)
		}
	}

	if sub := subdomainOf(req.Host); sub != "" {
		tenant, err := r.tenants.FindBySubdomain(ctx, sub, domain.TenantActive)
		switch {
		case err == nil:
			return reqctx.Binding{Tenant: tenant, Source: reqctx.SourceSubdomain}, nil
		case errors.Is(err, domain.ErrTenantNotFound):
			// fall through
		default:
			return reqctx.Binding{}, fmt.Errorf("tenant lookup by subdomain: %w", err)
		}
	}

	if id := req.UserTenantID; id != "" {
		tenant, err := r.tenants.FindByID(ctx, id)
		switch {
		case err == nil:
			return reqctx.Binding{Tenant: tenant, Source: reqctx.SourceUser}, nil
		case errors.Is(err, domain.ErrTenantNotFound):
			// fall through
		default:
			return reqctx.Binding{}, fmt.Errorf("tenant lookup by user affiliation: %w", err)
		}
	}

	return reqctx.Binding{Source: reqctx.SourceNone}, nil
}

// subdomainOf treats the first label of a host with at least three
// dot-separated labels as the tenant routing key.
func subdomainOf(host string) string {
	if host == "" {
		return ""
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
